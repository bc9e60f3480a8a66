package auth_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	auth "github.com/goliatone/go-forum-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_CreatesAccountCredentialAndEmail(t *testing.T) {
	f := setupService(t, auth.WithTokenGenerator(sequenceTokens()))

	var resp *auth.RegisterUserResponse
	account, err := f.svc.Register(context.Background(), auth.RegisterUserMessage{
		Username: "pepe_rone",
		Email:    "pepe@example.com",
		Name:     "Pepe Rone",
		Password: "hunter22",
		OnResponse: func(r *auth.RegisterUserResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, "pepe_rone", account.Username)
	assert.Equal(t, "Pepe Rone", account.Name)
	assert.True(t, account.IsAdmin, "first account is an administrator")

	require.NotNil(t, resp.Email)
	assert.False(t, resp.Email.IsVerified)
	assert.Equal(t, account.ID, resp.Email.AccountID)

	secret := f.secret(t, resp.Email.ID)
	assert.Equal(t, "tok1", secret.VerificationToken)
	require.NotNil(t, secret.VerificationEmailSentAt)

	tasks := f.tasks(t, auth.TaskSendVerificationEmail)
	require.Len(t, tasks, 1)
	assert.Equal(t, resp.Email.ID.String(), tasks[0].Payload["email_id"])
	assert.Equal(t, account.ID.String(), tasks[0].Payload["account_id"])
	assert.Equal(t, "pepe@example.com", tasks[0].Payload["email"])
	assert.Equal(t, "tok1", tasks[0].Payload["token"])

	assert.True(t, f.credential(t, account.ID).HasPassword())
	assert.Contains(t, f.sink.Types(), auth.ActivityEventAccountRegistered)

	second, err := f.svc.Register(context.Background(), auth.RegisterUserMessage{
		Username: "other",
		Email:    "other@example.com",
		Password: "hunter22",
	})
	require.NoError(t, err)
	assert.False(t, second.IsAdmin)
}

func TestRegister_UnverifiedEmailDoesNotLogIn(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.Register(context.Background(), auth.RegisterUserMessage{
		Username: "pepe",
		Email:    "pepe@example.com",
		Password: "hunter22",
	})
	require.NoError(t, err)

	_, err = f.svc.Login(context.Background(), "pepe@example.com", "hunter22")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = f.svc.Login(context.Background(), "pepe", "hunter22")
	assert.NoError(t, err)
}

func TestRegister_UsernameTaken(t *testing.T) {
	f := setupService(t)
	f.register(t, "pepe", "", "hunter22")

	_, err := f.svc.Register(context.Background(), auth.RegisterUserMessage{
		Username: "PEPE",
		Email:    "pepe@example.com",
		Password: "hunter22",
	})
	assert.ErrorIs(t, err, auth.ErrUsernameTaken)
	assert.Equal(t, 1, f.count(t, (*auth.Account)(nil)))
	assert.Equal(t, 0, f.count(t, (*auth.Email)(nil)))
}

func TestRegister_ConcurrentSameUsername(t *testing.T) {
	f := setupService(t)

	const workers = 5
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Register(context.Background(), auth.RegisterUserMessage{
				Username: "pepe",
				Email:    fmt.Sprintf("pepe%d@example.com", i),
				Password: "hunter22",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, auth.ErrUsernameTaken)
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.count(t, (*auth.Account)(nil)))
}

func TestRegister_Validation(t *testing.T) {
	f := setupService(t)

	cases := []struct {
		name string
		msg  auth.RegisterUserMessage
		want error
	}{
		{
			name: "empty password",
			msg:  auth.RegisterUserMessage{Username: "pepe", Email: "pepe@example.com"},
			want: auth.ErrNoEmptyString,
		},
		{
			name: "username starts with a digit",
			msg:  auth.RegisterUserMessage{Username: "9pepe", Email: "pepe@example.com", Password: "x"},
			want: auth.ErrInvalidUsername,
		},
		{
			name: "username with spaces",
			msg:  auth.RegisterUserMessage{Username: "pepe rone", Email: "pepe@example.com", Password: "x"},
			want: auth.ErrInvalidUsername,
		},
		{
			name: "double underscore",
			msg:  auth.RegisterUserMessage{Username: "pepe__rone", Email: "pepe@example.com", Password: "x"},
			want: auth.ErrInvalidUsername,
		},
		{
			name: "malformed email",
			msg:  auth.RegisterUserMessage{Username: "pepe", Email: "pepe.example.com", Password: "x"},
			want: auth.ErrInvalidEmail,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tc.msg)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	assert.Equal(t, 0, f.count(t, (*auth.Account)(nil)))
}

func TestVerifyEmail(t *testing.T) {
	f := setupService(t, auth.WithTokenGenerator(sequenceTokens()))
	account := f.register(t, "pepe", "", "hunter22")

	email, err := f.svc.AddEmail(context.Background(), account.ID, "pepe@example.com")
	require.NoError(t, err)
	assert.False(t, email.IsVerified)

	_, err = f.svc.VerifyEmail(context.Background(), email.ID, "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidVerificationToken)

	_, err = f.svc.VerifyEmail(context.Background(), uuid.New(), "tok1")
	assert.ErrorIs(t, err, auth.ErrInvalidVerificationToken)

	verified, err := f.svc.VerifyEmail(context.Background(), email.ID, "tok1")
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)
	assert.Empty(t, f.secret(t, email.ID).VerificationToken)

	again, err := f.svc.VerifyEmail(context.Background(), email.ID, "tok1")
	require.NoError(t, err, "verifying twice is a no-op")
	assert.True(t, again.IsVerified)

	got, err := f.svc.Login(context.Background(), "pepe@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	assert.Contains(t, f.sink.Types(), auth.ActivityEventEmailAdded)
	assert.Contains(t, f.sink.Types(), auth.ActivityEventEmailVerified)
}

func TestVerifyEmail_AddressVerifiedElsewhere(t *testing.T) {
	f := setupService(t, auth.WithTokenGenerator(sequenceTokens()))
	first := f.register(t, "first", "", "hunter22")
	second := f.register(t, "second", "", "hunter22")

	a, err := f.svc.AddEmail(context.Background(), first.ID, "shared@example.com")
	require.NoError(t, err)
	b, err := f.svc.AddEmail(context.Background(), second.ID, "Shared@example.com")
	require.NoError(t, err, "unverified duplicates are allowed")

	_, err = f.svc.VerifyEmail(context.Background(), b.ID, "tok2")
	require.NoError(t, err)

	_, err = f.svc.VerifyEmail(context.Background(), a.ID, "tok1")
	assert.ErrorIs(t, err, auth.ErrEmailAlreadyVerified)

	_, err = f.svc.AddEmail(context.Background(), first.ID, "shared@example.com")
	assert.ErrorIs(t, err, auth.ErrEmailAlreadyVerified)
}

func TestAddEmail_Errors(t *testing.T) {
	f := setupService(t)
	account := f.register(t, "pepe", "", "hunter22")

	_, err := f.svc.AddEmail(context.Background(), account.ID, "nope")
	assert.ErrorIs(t, err, auth.ErrInvalidEmail)

	_, err = f.svc.AddEmail(context.Background(), uuid.New(), "pepe@example.com")
	require.Error(t, err)
	assert.False(t, auth.IsLockedError(err))
	assert.Empty(t, f.emails(t, account.ID))
}

func TestDeleteAccount_Cascades(t *testing.T) {
	f := setupService(t)
	account := f.register(t, "pepe", "pepe@example.com", "hunter22")
	other := f.register(t, "other", "other@example.com", "hunter22")

	_, err := f.svc.AddEmail(context.Background(), account.ID, "second@example.com")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteAccount(context.Background(), account.ID))

	assert.Equal(t, 1, f.count(t, (*auth.Account)(nil)))
	assert.Equal(t, 1, f.count(t, (*auth.Credential)(nil)))
	assert.Equal(t, 1, f.count(t, (*auth.Email)(nil)))
	assert.Equal(t, 1, f.count(t, (*auth.EmailSecret)(nil)))
	assert.Len(t, f.emails(t, other.ID), 1)

	_, err = f.svc.Login(context.Background(), "pepe", "hunter22")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	err = f.svc.DeleteAccount(context.Background(), account.ID)
	assert.Error(t, err)

	assert.Contains(t, f.sink.Types(), auth.ActivityEventAccountDeleted)
}
