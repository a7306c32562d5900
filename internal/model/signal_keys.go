package model

// Signal names written by the extractor, the cohort analyzer and the engine.
const (
	SigHasWebsite = "profile.has_website"
	SigHasPhone   = "profile.has_phone"
	SigGeocoded   = "profile.geocoded"

	SigFreeEmailDomain   = "contact.free_email_domain"
	SigCustomEmailDomain = "contact.custom_email_domain"

	SigNameGenericScore = "name.generic_score"
	SigNameLocationTerm = "name.location_term"
	SigNamePersonal     = "name.personal_name"

	SigPlacesListed         = "places.listed"
	SigPlacesReviewCount    = "places.review_count"
	SigPlacesRating         = "places.rating"
	SigPlacesReviewsRecent  = "places.reviews_recent"
	SigPlacesReviewsStale   = "places.reviews_stale"
	SigPlacesLastReviewDays = "places.last_review_days"
	SigPlacesClosed         = "places.business_closed"

	SigWebsiteReachable       = "website.reachable"
	SigWebsiteThinContent     = "website.content_thin"
	SigWebsiteLicenseLanguage = "website.license_language"
	SigWebsiteContactPage     = "website.contact_page"
	SigWebsiteStaffOrPhotos   = "website.staff_or_photos"

	SigSocialProfile        = "social.has_profile"
	SigSocialRecentActivity = "social.recent_activity"

	SigGovLicensed               = "gov.licensed"
	SigGovRegistered             = "gov.registered"
	SigGovRegistrationMissing    = "gov.registration_missing"
	SigGovBusinessLicensed       = "gov.business_licensed"
	SigGovBusinessLicenseMissing = "gov.business_license_missing"
	SigGovPriorEnforcement       = "gov.prior_enforcement"

	SigNameLicenseMismatch = "derived.name_license_mismatch"
	SigDuplicateListing    = "derived.duplicate_listing"

	SigListed = "listing.listed"

	SigCohortSize             = "cohort.size"
	SigCohortMedian           = "cohort.activity_median"
	SigCohortSpread           = "cohort.activity_spread"
	SigCohortDeviation        = "cohort.activity_deviation"
	SigCohortReviewRank       = "cohort.review_rank"
	SigCohortReviewPercentile = "cohort.review_percentile"
	SigCohortLowOutlier       = "cohort.is_city_low_activity_outlier"
	SigCohortHighOutlier      = "cohort.is_city_high_activity_outlier"
	SigSharedAddressCount     = "cohort.shared_address_count"
	SigSharedPhoneCount       = "cohort.shared_phone_count"

	SigScoreFraud      = "score.fraud"
	SigScoreLegitimacy = "score.legitimacy"
	SigScoreCoverage   = "score.coverage"
)

// StatusSignal returns the signal name that marks a provider as being in status st.
func StatusSignal(st Status) string {
	return "status." + string(st)
}
