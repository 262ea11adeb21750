// Package tripflow - booking.go
// Hotel inventory and reservations: room-type availability over a date
// range and booking creation against it.

package tripflow

import (
	"time"

	"github.com/google/uuid"
)

// Hotel is a bookable property. Room types and bookings hang off it and
// are removed with it.
type Hotel struct {
	ID        uuid.UUID `gorm:"column:id;primaryKey" json:"id"`
	Name      string    `gorm:"column:name" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Hotel) TableName() string {
	return "hotels"
}

// RoomType is one category of room a hotel offers. TotalRooms caps how
// many bookings can overlap on any night.
type RoomType struct {
	ID           uuid.UUID `gorm:"column:id;primaryKey" json:"id"`
	HotelID      uuid.UUID `gorm:"column:hotel_id" json:"hotel_id"`
	Name         string    `gorm:"column:name" json:"name"`
	Description  string    `gorm:"column:description" json:"description"`
	MaxOccupancy int       `gorm:"column:max_occupancy" json:"max_occupancy"`
	BasePrice    float64   `gorm:"column:base_price" json:"base_price"`
	TotalRooms   int       `gorm:"column:total_rooms" json:"total_rooms"`
}

func (RoomType) TableName() string {
	return "room_types"
}

const (
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
)

// Booking is a confirmed reservation of one room for a date range.
// CheckOut is exclusive: a stay ending on a date does not block a stay
// starting on it.
type Booking struct {
	ID              uuid.UUID  `gorm:"column:id;primaryKey" json:"id"`
	HotelID         uuid.UUID  `gorm:"column:hotel_id" json:"hotel_id"`
	RoomTypeID      uuid.UUID  `gorm:"column:room_type_id" json:"room_type_id"`
	LeadID          *uuid.UUID `gorm:"column:lead_id" json:"lead_id,omitempty"`
	CheckIn         time.Time  `gorm:"column:check_in" json:"check_in"`
	CheckOut        time.Time  `gorm:"column:check_out" json:"check_out"`
	GuestsCount     int        `gorm:"column:guests_count" json:"guests_count"`
	SpecialRequests string     `gorm:"column:special_requests" json:"special_requests,omitempty"`
	Status          string     `gorm:"column:status" json:"status"`
	CreatedAt       time.Time  `gorm:"column:created_at" json:"created_at"`

	// Filled from the joined tables on reads, never written.
	HotelName    string `gorm:"->" json:"hotel_name,omitempty"`
	RoomTypeName string `gorm:"->" json:"room_type_name,omitempty"`
}

func (Booking) TableName() string {
	return "bookings"
}

// BookingRequest is the write request for a reservation.
type BookingRequest struct {
	HotelID         uuid.UUID
	RoomTypeID      uuid.UUID
	LeadID          *uuid.UUID
	CheckIn         time.Time
	CheckOut        time.Time
	GuestsCount     int
	SpecialRequests string
}

func (r *BookingRequest) Validate() error {
	if r.HotelID == uuid.Nil {
		return validationErr("hotel_id is required")
	}
	if r.RoomTypeID == uuid.Nil {
		return validationErr("room_type_id is required")
	}
	if r.CheckIn.IsZero() || r.CheckOut.IsZero() {
		return validationErr("check_in and check_out are required")
	}
	if !r.CheckOut.After(r.CheckIn) {
		return validationErr("check_out must be after check_in")
	}
	if r.GuestsCount < 1 {
		return validationErr("guests_count must be >= 1, got %d", r.GuestsCount)
	}
	return nil
}

// AvailabilityQuery asks how many rooms of each type are free for a
// date range, optionally narrowed to one room type.
type AvailabilityQuery struct {
	HotelID    uuid.UUID
	RoomTypeID *uuid.UUID
	CheckIn    time.Time
	CheckOut   time.Time
}

func (q *AvailabilityQuery) Validate() error {
	if q.HotelID == uuid.Nil {
		return validationErr("hotel_id is required")
	}
	if q.CheckIn.IsZero() || q.CheckOut.IsZero() {
		return validationErr("check_in and check_out are required")
	}
	if !q.CheckOut.After(q.CheckIn) {
		return validationErr("check_out must be after check_in")
	}
	return nil
}

// RoomAvailability is one room type with the count of rooms still free
// for the queried range.
type RoomAvailability struct {
	RoomTypeID     uuid.UUID `gorm:"column:room_type_id" json:"room_type_id"`
	Name           string    `gorm:"column:name" json:"name"`
	Description    string    `gorm:"column:description" json:"description"`
	MaxOccupancy   int       `gorm:"column:max_occupancy" json:"max_occupancy"`
	BasePrice      float64   `gorm:"column:base_price" json:"base_price"`
	TotalRooms     int       `gorm:"column:total_rooms" json:"total_rooms"`
	AvailableRooms int       `gorm:"column:available_rooms" json:"available_rooms"`
}

// Availability is the answer to an AvailabilityQuery.
type Availability struct {
	HotelID   uuid.UUID          `json:"hotel_id"`
	HotelName string             `json:"hotel_name"`
	CheckIn   time.Time          `json:"check_in"`
	CheckOut  time.Time          `json:"check_out"`
	RoomTypes []RoomAvailability `json:"room_types"`
}

// bookingBlocks reports whether the booking occupies a room on any
// night of [in, out). Cancelled bookings never block.
func bookingBlocks(b *Booking, in, out time.Time) bool {
	return b.Status != BookingCancelled && b.CheckIn.Before(out) && b.CheckOut.After(in)
}
