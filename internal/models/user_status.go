package models

// UserStatus is one backend account record. LastActiveDate is an opaque
// timestamp delivered by the backend and never parsed locally.
type UserStatus struct {
	AccountID      string `json:"unique_user_id"`
	DeviceID       string `json:"udid"`
	CountryCode    string `json:"country_code"`
	LastActiveDate string `json:"last_active_date"`
	DaysInactive   int    `json:"days_inactive"`
	IsBanned       bool   `json:"is_banned"`
}
