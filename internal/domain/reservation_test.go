package domain

import (
	"errors"
	"testing"
)

func validForm() ReservationForm {
	return ReservationForm{
		CheckInDate:  "2024-01-01",
		CheckOutDate: "2024-01-02",
		GuestName:    "A",
		GuestEmail:   "a@x.com",
		RoomNumber:   "101",
	}
}

func TestReservationForm_Validate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(f *ReservationForm)
		wantFields []string
	}{
		{
			name:   "valid form",
			mutate: func(*ReservationForm) {},
		},
		{
			name:       "missing check-in date",
			mutate:     func(f *ReservationForm) { f.CheckInDate = "" },
			wantFields: []string{"checkInDate"},
		},
		{
			name:       "missing check-out date",
			mutate:     func(f *ReservationForm) { f.CheckOutDate = "  " },
			wantFields: []string{"checkOutDate"},
		},
		{
			name:       "missing guest name",
			mutate:     func(f *ReservationForm) { f.GuestName = "" },
			wantFields: []string{"guestName"},
		},
		{
			name:       "missing room number",
			mutate:     func(f *ReservationForm) { f.RoomNumber = "" },
			wantFields: []string{"roomNumber"},
		},
		{
			name:       "missing email",
			mutate:     func(f *ReservationForm) { f.GuestEmail = "" },
			wantFields: []string{"guestEmail"},
		},
		{
			name:       "blank email is required, not malformed",
			mutate:     func(f *ReservationForm) { f.GuestEmail = "   " },
			wantFields: []string{"guestEmail"},
		},
		{
			name:       "malformed email",
			mutate:     func(f *ReservationForm) { f.GuestEmail = "not-an-email" },
			wantFields: []string{"guestEmail"},
		},
		{
			name: "check-out before check-in is accepted",
			mutate: func(f *ReservationForm) {
				f.CheckInDate = "2024-02-10"
				f.CheckOutDate = "2024-02-01"
			},
		},
		{
			name:       "empty form",
			mutate:     func(f *ReservationForm) { *f = ReservationForm{} },
			wantFields: []string{"checkInDate", "checkOutDate", "guestName", "guestEmail", "roomNumber"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validForm()
			tt.mutate(&form)

			errs := form.Validate()
			if len(errs) != len(tt.wantFields) {
				t.Fatalf("Validate() returned %d errors, want %d: %v", len(errs), len(tt.wantFields), errs)
			}
			for i, fe := range errs {
				if fe.Field != tt.wantFields[i] {
					t.Errorf("error[%d] field = %s, want %s", i, fe.Field, tt.wantFields[i])
				}
				if !IsValidationError(fe) {
					t.Errorf("error[%d] should be a validation error: %v", i, fe)
				}
			}
		})
	}
}

func TestReservationForm_MalformedEmailUnwraps(t *testing.T) {
	form := validForm()
	form.GuestEmail = "a@"

	errs := form.Validate()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if !errors.Is(errs[0], ErrEmailInvalid) {
		t.Errorf("expected ErrEmailInvalid, got %v", errs[0])
	}
}

func TestReservationForm_ErrorCauses(t *testing.T) {
	form := ReservationForm{GuestEmail: "front desk"}

	errs := form.Validate()
	if len(errs) != 5 {
		t.Fatalf("expected 5 errors, got %d: %v", len(errs), errs)
	}
	for _, fe := range errs {
		want := ErrFieldRequired
		if fe.Field == "guestEmail" {
			want = ErrEmailInvalid
		}
		if !errors.Is(fe, want) {
			t.Errorf("%s: expected %v, got %v", fe.Field, want, fe.Err)
		}
	}
}

func TestReservationForm_Reservation(t *testing.T) {
	form := validForm()
	form.GuestName = "  Alice  "

	r := form.Reservation()
	if r.ID != "" {
		t.Errorf("form must not carry an id, got %q", r.ID)
	}
	if r.GuestName != "Alice" {
		t.Errorf("expected trimmed guest name, got %q", r.GuestName)
	}
	if r.RoomNumber != "101" {
		t.Errorf("expected room 101, got %q", r.RoomNumber)
	}
}

func TestIsEmail(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"a@x.com", true},
		{"guest.name+tag@hotel.example", true},
		{"front.desk@mail.hotel.example", true},
		{"", false},
		{"plain", false},
		{"@x.com", false},
		{"a@", false},
		{"Alice <a@x.com>", false},
		{"a b@x.com", false},
		{"a..b@x.com", false},
		{"<a@x.com>", false},
	}

	for _, tt := range tests {
		if got := IsEmail(tt.in); got != tt.want {
			t.Errorf("IsEmail(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsValidationError(t *testing.T) {
	if !IsValidationError(ErrFormInvalid) {
		t.Error("ErrFormInvalid should be a validation error")
	}
	if !IsValidationError(errors.Join(ErrFieldRequired, errors.New("context"))) {
		t.Error("joined ErrFieldRequired should be a validation error")
	}
	if IsValidationError(ErrStorageUnavailable) {
		t.Error("ErrStorageUnavailable should not be a validation error")
	}
	if IsValidationError(nil) {
		t.Error("nil should not be a validation error")
	}
}
