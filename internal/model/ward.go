package model

import "time"

// Ward represents a hospital ward.  A ward is divided into numbered rooms
// (the "ward number" of an allocation) and each room holds a fixed number
// of beds numbered from 1.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – unique ward name, e.g. "General".
//  Category  – free-form category such as "ICU" or "Maternity".
//  Features  – amenities listed on the booking page.
//  Rooms     – numbered rooms with their bed counts.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Ward struct {
	ID        uint64     `json:"id"`
	Name      string     `json:"wardName"`
	Category  string     `json:"wardCategory"`
	Features  []string   `json:"features"`
	Rooms     []WardRoom `json:"wardNumbers"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// WardRoom is one numbered room of a ward.
type WardRoom struct {
	Number int `json:"wardNo"`
	Beds   int `json:"beds"`
}

// HasBed reports whether the ward contains the given room and bed.
func (w *Ward) HasBed(room, bed int) bool {
	for _, r := range w.Rooms {
		if r.Number == room {
			return bed >= 1 && bed <= r.Beds
		}
	}
	return false
}

// KeepsBeds reports whether every bed in active still exists in w under the
// same ward name.  A ward update that breaks this would leave occupied beds
// outside the catalog and free for a second allocation.
func (w *Ward) KeepsBeds(active []BedKey) bool {
	for _, b := range active {
		if b.WardName != w.Name || !w.HasBed(b.WardNumber, b.BedNumber) {
			return false
		}
	}
	return true
}
