package model

// Institution is a bank the backend can link to.
type Institution struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Logo      string   `json:"logo,omitempty"`
	Countries []string `json:"countries,omitempty"`
}

// LinkRequest starts linking a bank through the aggregator.
type LinkRequest struct {
	UseAgreement       *bool    `json:"useAgreement,omitempty"`
	Country            string   `json:"country,omitempty"`
	InstitutionID      string   `json:"institutionId,omitempty"`
	UserLanguage       string   `json:"user_language,omitempty"`
	Reference          string   `json:"reference,omitempty"`
	AccessScope        []string `json:"access_scope,omitempty"`
	MaxHistoricalDays  int      `json:"max_historical_days,omitempty"`
	AccessValidForDays int      `json:"access_valid_for_days,omitempty"`
}

// LinkStart holds the consent link the user must open.
type LinkStart struct {
	Link          string `json:"link"`
	RequisitionID string `json:"requisitionId"`
	InstitutionID string `json:"institutionId"`
}

// CustomCategory is a user-defined category.
type CustomCategory struct {
	ID        string `json:"_id,omitempty"`
	Name      string `json:"name"`
	IconPath  string `json:"iconPath"`
	UserID    string `json:"userId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// UserProfile is the authenticated user.
type UserProfile struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	Picture      string `json:"picture,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	AuthProvider string `json:"authProvider,omitempty"`
}

// Credentials is the token pair issued at login.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
