package model

import "time"

// ProcedureType is one row of the persisted duration table.
type ProcedureType struct {
	Name            string    `gorm:"primaryKey;size:128" json:"procedure_type"`
	TurnAroundHours int       `gorm:"not null" json:"turn_around_hours"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}
