package model

// ShareToken grants unauthenticated read access to a single image until it
// expires. All timestamps are unix milliseconds.
type ShareToken struct {
	Token     string `gorm:"primaryKey;size:64" json:"token"`
	ImageKey  string `gorm:"size:1024;not null;index" json:"imageKey"`
	CreatedAt int64  `gorm:"not null;autoCreateTime:milli" json:"createdAt"`
	ExpiresAt int64  `gorm:"not null;index" json:"expiresAt"`
	// Nil for tokens minted without an authenticated caller
	CreatedBy *string `gorm:"index" json:"createdBy,omitempty"`
}

// Expired reports whether the token is past its expiry at nowMs. A token is
// still valid during the millisecond it expires in.
func (s *ShareToken) Expired(nowMs int64) bool {
	return s.ExpiresAt < nowMs
}
