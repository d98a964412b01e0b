package validate

import "testing"

func TestEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"ivan@example.com", true},
		{"IVAN@EXAMPLE.COM", true},
		{"  ivan@example.com  ", true},
		{"ivan.petrov+rent@mail.ru", true},
		{"ivan@localhost", false},
		{"ivan", false},
		{"@example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Email(tt.email); got != tt.want {
			t.Errorf("Email(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}

func TestPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErrs int
	}{
		{"valid", "Password1", 0},
		{"too short", "Pa1", 1},
		{"no upper", "password1", 1},
		{"no digit", "Passwordx", 1},
		{"only digits", "12345678", 2},
		{"empty", "", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Password(tt.password); len(got) != tt.wantErrs {
				t.Errorf("Password(%q) = %v (%d errors), want %d", tt.password, got, len(got), tt.wantErrs)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	valid := Registration{
		Email:           "ivan@example.com",
		Password:        "Password1",
		PasswordConfirm: "Password1",
		FirstName:       "Иван",
		LastName:        "Петров",
		IsTenant:        true,
	}
	if errs := Check(valid); errs != nil {
		t.Fatalf("Check(valid) = %v, want nil", errs)
	}

	t.Run("password mismatch", func(t *testing.T) {
		r := valid
		r.PasswordConfirm = "Password2"
		errs := Check(r)
		if len(errs["password_confirm"]) != 1 {
			t.Errorf("password_confirm errors = %v", errs["password_confirm"])
		}
	})

	t.Run("no role", func(t *testing.T) {
		r := valid
		r.IsTenant = false
		errs := Check(r)
		if len(errs["is_landlord"]) != 1 {
			t.Errorf("is_landlord errors = %v", errs["is_landlord"])
		}
	})

	t.Run("short names", func(t *testing.T) {
		r := valid
		r.FirstName = "И"
		r.LastName = " "
		errs := Check(r)
		if len(errs["first_name"]) != 1 || len(errs["last_name"]) != 1 {
			t.Errorf("name errors = %v", errs)
		}
	})

	t.Run("everything wrong", func(t *testing.T) {
		errs := Check(Registration{})
		for _, field := range []string{"email", "password", "first_name", "last_name", "is_landlord"} {
			if len(errs[field]) == 0 {
				t.Errorf("missing errors for %q", field)
			}
		}
	})
}
