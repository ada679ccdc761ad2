package services

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterGrantsStartingBalance(t *testing.T) {
	store := newFakeStore()
	svc := NewAuthService(&fakeAccountRepo{store: store})
	ctx := context.Background()

	account, err := svc.Register(ctx, RegisterInput{Nickname: "ada", Email: "ada@example.com", Password: "correcthorse"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if account.Balance != StartingBalance {
		t.Fatalf("balance = %d, want %d", account.Balance, StartingBalance)
	}
	if account.PasswordHash != "" {
		t.Fatalf("password hash leaked in response")
	}

	if _, err := svc.Register(ctx, RegisterInput{Nickname: "ada2", Email: "ada@example.com", Password: "correcthorse"}); !errors.Is(err, ErrAuthEmailTaken) {
		t.Fatalf("duplicate email: err = %v, want ErrAuthEmailTaken", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewAuthService(&fakeAccountRepo{store: newFakeStore()})
	ctx := context.Background()

	cases := []RegisterInput{
		{Nickname: "", Email: "a@b.com", Password: "longenough"},
		{Nickname: "x", Email: "not-an-email", Password: "longenough"},
		{Nickname: "x", Email: "a@b.com", Password: "short"},
	}
	for i, input := range cases {
		if _, err := svc.Register(ctx, input); !errors.Is(err, ErrValidationFailed) {
			t.Fatalf("case %d: err = %v, want ErrValidationFailed", i, err)
		}
	}
}

func TestLogin(t *testing.T) {
	store := newFakeStore()
	svc := NewAuthService(&fakeAccountRepo{store: store})
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Nickname: "ada", Email: "ada@example.com", Password: "correcthorse"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "correcthorse"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "wrong"}); !errors.Is(err, ErrAuthInvalidCredentials) {
		t.Fatalf("wrong password: err = %v, want ErrAuthInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, LoginInput{Email: "ghost@example.com", Password: "whatever"}); !errors.Is(err, ErrAuthInvalidCredentials) {
		t.Fatalf("unknown email: err = %v, want ErrAuthInvalidCredentials", err)
	}
}
