package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is one guild account. Every other record belongs to a tenant.
// Tier is written by the billing subsystem and only read here.
type Tenant struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	GuildID   string    `db:"guild_id"   json:"guild_id"`
	Tier      Tier      `db:"tier"       json:"tier"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
