package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation wraps all input validation failures so handlers can map
// them to 400 without inspecting individual causes.
var ErrValidation = errors.New("validation failed")

// JobStatus is the forward-only lifecycle of a delivery job.
type JobStatus int

const (
	StatusOpen      JobStatus = 1
	StatusAssigned  JobStatus = 2
	StatusPickedUp  JobStatus = 3
	StatusDelivered JobStatus = 4
)

func (s JobStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusAssigned:
		return "assigned"
	case StatusPickedUp:
		return "picked_up"
	case StatusDelivered:
		return "delivered"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s JobStatus) Valid() bool {
	return s >= StatusOpen && s <= StatusDelivered
}

// Active reports whether a job in this status occupies its rider's
// single active-job slot.
func (s JobStatus) Active() bool {
	return s == StatusAssigned || s == StatusPickedUp
}

// Job is one delivery order. RiderID is empty exactly while the job is Open.
type Job struct {
	ID                string    `json:"id"`
	SenderID          string    `json:"sender_id"`
	SenderAddressID   string    `json:"sender_address_id"`
	ReceiverID        string    `json:"receiver_id"`
	ReceiverAddressID string    `json:"receiver_address_id"`
	Description       string    `json:"description"`
	ProductImage      string    `json:"product_image,omitempty"`
	PickupImage       string    `json:"pickup_image,omitempty"`
	DeliveryImage     string    `json:"delivery_image,omitempty"`
	Status            JobStatus `json:"status"`
	StatusName        string    `json:"status_name"`
	RiderID           string    `json:"rider_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Address is the resolved form of an address reference, joined in at read time.
type Address struct {
	ID     string  `json:"id"`
	Label  string  `json:"label,omitempty"`
	Detail string  `json:"detail"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
}

// HydratedJob is a Job plus the joined sender/receiver context the clients
// render. The core never caches these; every read re-joins.
type HydratedJob struct {
	Job
	SenderName      string  `json:"sender_name"`
	ReceiverName    string  `json:"receiver_name"`
	RiderName       string  `json:"rider_name,omitempty"`
	SenderAddress   Address `json:"sender_address"`
	ReceiverAddress Address `json:"receiver_address"`
}

// JobDraft carries the sender-supplied fields of a new job. Status and rider
// are never taken from the caller.
type JobDraft struct {
	SenderID          string `json:"sender_id"`
	SenderAddressID   string `json:"sender_address_id"`
	ReceiverID        string `json:"receiver_id"`
	ReceiverAddressID string `json:"receiver_address_id"`
	Description       string `json:"description"`
	ProductImage      string `json:"product_image"`
}

func (d JobDraft) Validate() error {
	var errs []error
	for field, v := range map[string]string{
		"sender_id":           d.SenderID,
		"sender_address_id":   d.SenderAddressID,
		"receiver_id":         d.ReceiverID,
		"receiver_address_id": d.ReceiverAddressID,
		"description":         d.Description,
	} {
		if v == "" {
			errs = append(errs, fmt.Errorf("%w: %s is required", ErrValidation, field))
		}
	}
	return errors.Join(errs...)
}

// RiderLocation is the latest known position of one rider. Latest-wins,
// no history.
type RiderLocation struct {
	RiderID   string    `json:"rider_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LocationReport is a single position sample from a rider device. Pointer
// fields distinguish absent coordinates from a genuine 0.0.
type LocationReport struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (r LocationReport) Validate() error {
	if r.Latitude == nil || r.Longitude == nil {
		return fmt.Errorf("%w: latitude and longitude are required", ErrValidation)
	}
	return ValidateCoordinates(*r.Latitude, *r.Longitude)
}

func ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90,90]", ErrValidation, lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180,180]", ErrValidation, lng)
	}
	return nil
}

// ListRole scopes job listings to the caller's relationship with the job.
type ListRole string

const (
	RoleSender   ListRole = "sender"
	RoleReceiver ListRole = "receiver"
	RoleRider    ListRole = "rider"
)

func (r ListRole) Valid() bool {
	return r == RoleSender || r == RoleReceiver || r == RoleRider
}
