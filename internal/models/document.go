package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DocumentCategory identifies the kind of regulatory document.
type DocumentCategory string

const (
	CategoryPropertyCard        DocumentCategory = "TARJETA_PROPIEDAD"
	CategorySOAT                DocumentCategory = "SOAT"
	CategoryRoadworthiness      DocumentCategory = "TECNOMECANICA"
	CategoryOperationCard       DocumentCategory = "TARJETA_OPERACION"
	CategoryContractualPolicy   DocumentCategory = "POLIZA_CONTRACTUAL"
	CategoryLiabilityPolicy     DocumentCategory = "POLIZA_EXTRACONTRACTUAL"
	CategoryComprehensivePolicy DocumentCategory = "POLIZA_TODO_RIESGO"
	CategoryGPSCertificate      DocumentCategory = "CERTIFICADO_GPS"
)

// Categories lists every known category in display priority order.
var Categories = []DocumentCategory{
	CategoryPropertyCard,
	CategorySOAT,
	CategoryRoadworthiness,
	CategoryOperationCard,
	CategoryContractualPolicy,
	CategoryLiabilityPolicy,
	CategoryComprehensivePolicy,
	CategoryGPSCertificate,
}

// IsValidCategory reports whether c belongs to the closed category set.
func IsValidCategory(c DocumentCategory) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Document is a regulatory file attached to a vehicle.
// Its compliance status is derived at read time and never stored.
type Document struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	Category   DocumentCategory   `bson:"category" json:"category"`
	FileName   string             `bson:"file_name" json:"file_name"`
	ObjectKey  string             `bson:"object_key" json:"object_key,omitempty"`
	Size       int64              `bson:"size" json:"size"`
	UploadedAt time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	ExpiryDate *time.Time         `bson:"expiry_date,omitempty" json:"expiry_date,omitempty"`
}

// Clone returns a copy of d with its own expiry pointer.
func (d Document) Clone() Document {
	out := d
	if d.ExpiryDate != nil {
		t := *d.ExpiryDate
		out.ExpiryDate = &t
	}
	return out
}

// SignedURL is a short-lived link to a stored document.
type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
