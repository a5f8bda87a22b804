package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eyelink/client/internal/credentials"
	"github.com/eyelink/client/internal/models"
	"github.com/eyelink/client/internal/services"
)

func (a *App) signUp(ctx context.Context, args []string) error {
	set := a.flags("signup")
	var in services.SignUpInput
	role := set.String("role", string(models.RoleSeeker), "seeker or helper")
	set.StringVar(&in.FirstName, "first", "", "first name")
	set.StringVar(&in.LastName, "last", "", "last name")
	set.StringVar(&in.Email, "email", "", "email address")
	set.StringVar(&in.Password, "password", "", "password")
	if _, err := parse(set, args); err != nil {
		return err
	}
	in.Role = models.Role(*role)

	session, err := a.deps.Services.Auth.SignUp(ctx, in)
	if err != nil {
		return err
	}
	a.printf("Account created. Signed in as %s.\n", session.Role)
	return nil
}

func (a *App) login(ctx context.Context, args []string) error {
	set := a.flags("login")
	email := set.String("email", "", "email address")
	password := set.String("password", "", "password")
	role := set.String("role", string(models.RoleSeeker), "seeker or helper")
	if _, err := parse(set, args); err != nil {
		return err
	}

	session, err := a.deps.Services.Auth.Login(ctx, *email, *password, models.Role(*role))
	if err != nil {
		return err
	}
	a.printf("Signed in as %s.\n", session.Role)
	return nil
}

func (a *App) googleLogin(ctx context.Context, args []string) error {
	set := a.flags("google-login")
	idToken := set.String("id-token", "", "Google ID token")
	role := set.String("role", string(models.RoleSeeker), "seeker or helper")
	if _, err := parse(set, args); err != nil {
		return err
	}
	if *idToken == "" {
		return services.Failed("A Google ID token is required.")
	}

	session, err := a.deps.Services.Auth.GoogleLogin(ctx, *idToken, models.Role(*role))
	if err != nil {
		return err
	}
	a.printf("Signed in with Google as %s.\n", session.Role)
	return nil
}

func (a *App) sendCode(ctx context.Context, args []string) error {
	set := a.flags("send-code")
	email := set.String("email", "", "email address")
	if _, err := parse(set, args); err != nil {
		return err
	}
	if err := a.deps.Services.Auth.SendCode(ctx, *email); err != nil {
		return err
	}
	a.printf("A verification code was sent to %s.\n", *email)
	return nil
}

func (a *App) verifyCode(ctx context.Context, args []string) error {
	set := a.flags("verify-code")
	email := set.String("email", "", "email address")
	code := set.String("code", "", "verification code")
	if _, err := parse(set, args); err != nil {
		return err
	}
	if err := a.deps.Services.Auth.VerifyCode(ctx, *email, *code); err != nil {
		return err
	}
	a.printf("Code verified.\n")
	return nil
}

func (a *App) resetPassword(ctx context.Context, args []string) error {
	set := a.flags("reset-password")
	email := set.String("email", "", "email address")
	code := set.String("code", "", "verification code")
	password := set.String("password", "", "new password")
	if _, err := parse(set, args); err != nil {
		return err
	}
	if err := a.deps.Services.Auth.ResetPassword(ctx, *email, *code, *password); err != nil {
		return err
	}
	a.printf("Password updated. You can sign in now.\n")
	return nil
}

func (a *App) logout(ctx context.Context, _ []string) error {
	if err := a.deps.Services.Auth.Logout(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	a.printf("Signed out.\n")
	return nil
}

func (a *App) whoami(ctx context.Context, _ []string) error {
	session, err := a.session(ctx)
	if err != nil {
		return err
	}

	if claims, err := credentials.ParseClaims(session.Token); err == nil && claims.Expired(time.Now()) {
		a.printf("Your session has expired. Sign in again.\n")
		return nil
	}

	user, err := a.deps.Services.Users.Me(ctx)
	if err != nil {
		return err
	}
	a.printf("%s <%s>\nrole: %s\nid: %s\n", user.DisplayName(), user.Email, session.Role, user.ID)
	return nil
}

func (a *App) profile(ctx context.Context, args []string) error {
	sub, rest := subcommand(args, "show")
	users := a.deps.Services.Users

	switch sub {
	case "show":
		user, err := users.Me(ctx)
		if err != nil {
			return err
		}
		a.printf("first name: %s\nlast name: %s\nemail: %s\n", user.FirstName, user.LastName, user.Email)
		return nil
	case "update":
		set := a.flags("profile update")
		var update services.ProfileUpdate
		set.StringVar(&update.FirstName, "first", "", "first name")
		set.StringVar(&update.LastName, "last", "", "last name")
		set.StringVar(&update.Email, "email", "", "email address")
		if _, err := parse(set, rest); err != nil {
			return err
		}
		user, err := users.UpdateMe(ctx, update)
		if err != nil {
			return err
		}
		a.printf("Profile updated: %s <%s>\n", user.DisplayName(), user.Email)
		return nil
	case "delete":
		if err := users.DeleteMe(ctx); err != nil {
			return err
		}
		a.printf("Account deleted.\n")
		return nil
	default:
		return fmt.Errorf("unknown profile command %q", sub)
	}
}

// session loads the stored session, failing when nobody is signed in.
func (a *App) session(ctx context.Context) (credentials.Session, error) {
	session, err := credentials.LoadSession(ctx, a.deps.Tokens, a.deps.Roles)
	if err != nil {
		return credentials.Session{}, err
	}
	if !session.Authenticated() {
		return credentials.Session{}, services.ErrUnauthorized
	}
	return session, nil
}

// requireRole fails unless the stored session belongs to role.
func (a *App) requireRole(ctx context.Context, role models.Role) error {
	session, err := a.session(ctx)
	if err != nil {
		return err
	}
	if session.Role != role {
		return errors.New("this command is only available to " + string(role) + "s")
	}
	return nil
}
