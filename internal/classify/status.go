// Package classify assigns the licensing-status taxonomy.
package classify

import "github.com/sells-group/provider-screen/internal/model"

// Status maps the licensed and listed facts to a status. It is total: every
// pair of tristates has exactly one result, and an unknown license is always
// StatusUnknown. A licensed provider whose listing is unknown is also
// StatusUnknown, since neither fraud pattern can be confirmed.
func Status(licensed, listed model.Tristate) model.Status {
	switch licensed {
	case model.True:
		switch listed {
		case model.True:
			return model.StatusLicensedAndActive
		case model.False:
			return model.StatusLicensedNotListed
		default:
			return model.StatusUnknown
		}
	case model.False:
		if listed == model.True {
			return model.StatusUnlicensedButListed
		}
		return model.StatusUnknown
	default:
		return model.StatusUnknown
	}
}

// Apply classifies p from its signals, sets p.Status and writes the matching
// status.<name> signal.
func Apply(p *model.Provider) model.Status {
	st := Status(p.Signals.Tristate(model.SigGovLicensed), p.Signals.Tristate(model.SigListed))
	p.Status = st
	p.Signals[model.StatusSignal(st)] = model.Bool(true)
	return st
}
