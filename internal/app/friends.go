package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/eyelink/client/internal/friends"
)

func (a *App) friends(ctx context.Context, args []string) error {
	sub, rest := subcommand(args, "list")
	svc := a.deps.Services.Friends
	book := a.friendBook()

	switch sub {
	case "list":
		list, err := book.Friends(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			a.printf("You have no friends yet.\n")
			return nil
		}
		for _, f := range list {
			a.printf("%s\t%s <%s>\n", f.ID, f.DisplayName(), f.Email)
		}
		return nil
	case "requests":
		if _, err := book.Refresh(ctx); err != nil {
			return err
		}
		pending := book.Pending()
		if len(pending) == 0 {
			a.printf("No pending friend requests.\n")
			return nil
		}
		for _, r := range pending {
			a.printf("%s\t%s %s <%s>\n", r.ID, r.FirstName, r.LastName, r.Email)
		}
		return nil
	case "send":
		email, err := single(rest, "email address")
		if err != nil {
			return err
		}
		if err := svc.Send(ctx, email); err != nil {
			return err
		}
		a.printf("Friend request sent to %s.\n", email)
		return nil
	case "accept", "reject":
		id, err := single(rest, "request id")
		if err != nil {
			return err
		}
		answer := book.Accept
		if sub == "reject" {
			answer = book.Decline
		}
		if err := answer(ctx, id); err != nil {
			return err
		}
		status, _ := book.Status(id)
		a.printf("Request %s %s.\n", id, status)
		return nil
	case "remove":
		id, err := single(rest, "friend id")
		if err != nil {
			return err
		}
		if err := svc.Remove(ctx, id); err != nil {
			return err
		}
		a.printf("Friend removed.\n")
		return nil
	case "edit":
		set := a.flags("friends edit")
		first := set.String("first", "", "first name")
		last := set.String("last", "", "last name")
		positional, err := parse(set, rest)
		if err != nil {
			return err
		}
		id, err := single(positional, "friend id")
		if err != nil {
			return err
		}
		if err := svc.Edit(ctx, id, *first, *last); err != nil {
			return err
		}
		a.printf("Friend renamed.\n")
		return nil
	default:
		return fmt.Errorf("unknown friends command %q", sub)
	}
}

// friendBook is shared by every friends command so answers outlive the command that gave them.
func (a *App) friendBook() *friends.Book {
	if a.book == nil {
		var opts []friends.Option
		if a.deps.Answers != nil {
			opts = append(opts, friends.WithAnswerStore(a.deps.Answers))
		}
		a.book = friends.NewBook(a.deps.Services.Friends, opts...)
	}
	return a.book
}

func single(args []string, what string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", errors.New("expected one " + what)
	}
	return args[0], nil
}
