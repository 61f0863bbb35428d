package models

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("vehicle_status", func(fl validator.FieldLevel) bool {
		return IsValidVehicleStatus(VehicleStatus(fl.Field().String()))
	})
	_ = v.RegisterValidation("document_category", func(fl validator.FieldLevel) bool {
		return IsValidCategory(DocumentCategory(fl.Field().String()))
	})
	return v
}

// ValidationError carries per-field messages for a rejected payload.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// validationError converts validator output into a ValidationError.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		out.Fields[field] = describe(fe)
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof", "vehicle_status", "document_category":
		return "has an unsupported value"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	default:
		return "is invalid"
	}
}

// DocumentPayload sets the expiry date of a vehicle document by category.
type DocumentPayload struct {
	Category   DocumentCategory `json:"category" validate:"required,document_category"`
	ExpiryDate *time.Time       `json:"expiry_date,omitempty"`
}

// VehiclePayload is the create/update body accepted by the vehicles API.
type VehiclePayload struct {
	Plate            string            `json:"plate" validate:"required,min=5,max=10"`
	Brand            string            `json:"brand" validate:"required,max=60"`
	Line             string            `json:"line" validate:"max=60"`
	Model            int               `json:"model" validate:"omitempty,gte=1900,lte=2100"`
	Color            string            `json:"color" validate:"max=40"`
	Class            string            `json:"class" validate:"required,max=40"`
	BodyType         string            `json:"body_type" validate:"max=40"`
	FuelType         string            `json:"fuel_type" validate:"max=40"`
	EngineNumber     string            `json:"engine_number" validate:"max=40"`
	ChassisNumber    string            `json:"chassis_number" validate:"max=40"`
	VIN              string            `json:"vin" validate:"omitempty,len=17"`
	Odometer         *float64          `json:"odometer,omitempty" validate:"omitempty,gte=0"`
	Status           VehicleStatus     `json:"status" validate:"required,vehicle_status"`
	OwnerName        string            `json:"owner_name" validate:"required,max=120"`
	OwnerID          string            `json:"owner_id" validate:"max=40"`
	RegistrationDate *time.Time        `json:"registration_date,omitempty"`
	Location         *Location         `json:"location,omitempty"`
	Documents        []DocumentPayload `json:"documents,omitempty" validate:"dive"`
}

// Validate checks the payload against the vehicle schema.
func (p VehiclePayload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return validationError(err)
	}
	return nil
}

// ApplyTo copies the payload's attributes onto v. Documents are left to the caller.
func (p VehiclePayload) ApplyTo(v *Vehicle) {
	v.Plate = strings.ToUpper(strings.TrimSpace(p.Plate))
	v.Brand = p.Brand
	v.Line = p.Line
	v.Model = p.Model
	v.Color = p.Color
	v.Class = p.Class
	v.BodyType = p.BodyType
	v.FuelType = p.FuelType
	v.EngineNumber = p.EngineNumber
	v.ChassisNumber = p.ChassisNumber
	v.VIN = p.VIN
	v.Odometer = p.Odometer
	v.Status = p.Status
	v.OwnerName = p.OwnerName
	v.OwnerID = p.OwnerID
	v.RegistrationDate = p.RegistrationDate
	v.Location = p.Location
}

// PayloadFrom builds the payload that would reproduce v's attributes.
func PayloadFrom(v Vehicle) VehiclePayload {
	p := VehiclePayload{
		Plate:            v.Plate,
		Brand:            v.Brand,
		Line:             v.Line,
		Model:            v.Model,
		Color:            v.Color,
		Class:            v.Class,
		BodyType:         v.BodyType,
		FuelType:         v.FuelType,
		EngineNumber:     v.EngineNumber,
		ChassisNumber:    v.ChassisNumber,
		VIN:              v.VIN,
		Odometer:         v.Odometer,
		Status:           v.Status,
		OwnerName:        v.OwnerName,
		OwnerID:          v.OwnerID,
		RegistrationDate: v.RegistrationDate,
		Location:         v.Location,
	}
	for _, d := range v.Documents {
		p.Documents = append(p.Documents, DocumentPayload{Category: d.Category, ExpiryDate: d.ExpiryDate})
	}
	return p
}
