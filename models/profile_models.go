package models

import "time"

// UpcomingEvent is an event an organizer is looking to get sponsored.
type UpcomingEvent struct {
	ID                      string     `json:"id" db:"id"`
	Name                    string     `json:"name" db:"name"`
	Date                    *time.Time `json:"date,omitempty" db:"event_date"`
	Description             string     `json:"description" db:"description"`
	BudgetRange             string     `json:"budget_range" db:"budget_range"`
	AudienceType            string     `json:"audience_type" db:"audience_type"`
	SponsorshipRequirements string     `json:"sponsorship_requirements" db:"sponsorship_requirements"`
}

// OrganizerDetails holds the organizer-only part of a profile.
type OrganizerDetails struct {
	PastEvents     string          `json:"past_events"`
	UpcomingEvents []UpcomingEvent `json:"upcoming_events"`
}

// SponsorDetails holds the sponsor-only part of a profile.
type SponsorDetails struct {
	CompanyName              string     `json:"company_name" db:"company_name"`
	EventTypesSponsored      StringList `json:"event_types_sponsored" db:"event_types_sponsored"`
	PreferredPromotionFormat StringList `json:"preferred_promotion_format" db:"preferred_promotion_format"`
}

// Profile is a user together with the details of their role. Exactly one of
// the embedded detail pointers is set; JSON flattens them into one object.
type Profile struct {
	User
	*OrganizerDetails
	*SponsorDetails
}

// UpdateProfileRequest updates the fields shared by both roles. Nil fields
// are left unchanged.
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	About       *string `json:"about"`
}

// UpdateOrganizerRequest updates organizer-only fields. A non-nil
// UpcomingEvents replaces the whole list.
type UpdateOrganizerRequest struct {
	PastEvents     *string          `json:"past_events"`
	UpcomingEvents *[]UpcomingEvent `json:"upcoming_events"`
}

// UpdateSponsorRequest updates sponsor-only fields.
type UpdateSponsorRequest struct {
	CompanyName              *string   `json:"company_name"`
	EventTypesSponsored      *[]string `json:"event_types_sponsored"`
	PreferredPromotionFormat *[]string `json:"preferred_promotion_format"`
}

// SearchFilters narrows a user search.
type SearchFilters struct {
	Role Role
}
