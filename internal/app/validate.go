package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"pisos/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// listingRules is the write-path view of a listing that validation runs on.
type listingRules struct {
	Link    string      `validate:"required,url"`
	Price   float64     `validate:"gt=0"`
	Kind    domain.Kind `validate:"required,oneof=alquiler compra"`
	Surface *float64    `validate:"omitempty,gt=0"`
	Rooms   *int        `validate:"omitempty,gte=0"`
}

type patchRules struct {
	Price   *float64     `validate:"omitempty,gt=0"`
	Surface *float64     `validate:"omitempty,gt=0"`
	Link    *string      `validate:"omitempty,url"`
	Kind    *domain.Kind `validate:"omitempty,oneof=alquiler compra"`
}

func validateListing(l domain.Listing) error {
	return describe(validate.Struct(listingRules{
		Link: l.Link, Price: l.Price, Kind: l.Kind, Surface: l.Surface, Rooms: l.Rooms,
	}))
}

func validatePatch(p domain.ListingPatch) error {
	return describe(validate.Struct(patchRules{
		Price: p.Price, Surface: p.Surface, Link: p.Link, Kind: p.Kind,
	}))
}

// describe turns validator output into a single ErrInvalidListing.
func describe(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidListing, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidListing, strings.Join(msgs, ", "))
}
