package models

import "time"

// Account is an exchange account whose history is downloaded and taxed.
// Fiat is the reporting currency for every run on this account; it is
// fixed per account and never changes mid-run.
type Account struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"-"`
	APISecret string    `json:"-"`
	Fiat      string    `json:"fiat"` // e.g. "EUR"
	CreatedAt time.Time `json:"createdAt"`
}
