package model

// SettingsRowID is the only primary key the settings table ever holds.
const SettingsRowID = 1

// Settings is the single extension-wide settings row.
type Settings struct {
	ID              int    `json:"-" gorm:"primaryKey;autoIncrement:false"`
	NostrPrivateKey string `json:"nostr_private_key" gorm:"type:text;not null"`
}

func (Settings) TableName() string { return "lnurlp_settings" }

// ExtendedSettings merges the settings row with the relay list kept in
// the side file.
type ExtendedSettings struct {
	NostrPrivateKey string   `json:"nostr_private_key"`
	NostrPublicKey  string   `json:"nostr_public_key,omitempty"`
	Relays          []string `json:"lnbits_nostr2http_relays"`
}
