package bot

import (
	"context"
	"errors"
	"fmt"

	"campusmart/internal/client"
	"campusmart/internal/session"
)

const loginHint = "You are not logged in. Use /login <email> <password> or /signup <name> | <email> | <password>."

func (b *Bot) handleLogin(ctx context.Context, chatID int64, args string) {
	email, password, err := ParseLoginArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	s := b.session(ctx, chatID)
	if err := s.Login(ctx, email, password); err != nil {
		b.reply(chatID, "Login failed: "+notice(err)+".")
		return
	}
	b.reply(chatID, fmt.Sprintf("Welcome back, %s!", s.Session().User.Name))
}

func (b *Bot) handleSignup(ctx context.Context, chatID int64, args string) {
	name, email, password, err := ParseSignupArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	s := b.session(ctx, chatID)
	if err := s.Signup(ctx, name, email, password); err != nil {
		b.reply(chatID, "Sign up failed: "+notice(err)+".")
		return
	}
	b.reply(chatID, fmt.Sprintf("Account created. Welcome, %s!\nSet your WhatsApp number with /whatsapp so buyers can reach you.", s.Session().User.Name))
}

func (b *Bot) handleLogout(ctx context.Context, chatID int64) {
	if err := b.session(ctx, chatID).Logout(ctx); err != nil {
		b.reply(chatID, "Logout failed: "+notice(err)+".")
		return
	}
	b.reply(chatID, "You are logged out.")
}

func (b *Bot) handleWhoAmI(ctx context.Context, chatID int64) {
	sess := b.session(ctx, chatID).Session()
	if !sess.Authenticated {
		b.reply(chatID, loginHint)
		return
	}
	text := fmt.Sprintf("%s <%s>", sess.User.Name, sess.User.Email)
	if sess.User.WhatsApp != "" {
		text += "\nWhatsApp: " + sess.User.WhatsApp
	}
	b.reply(chatID, text)
}

// requireAuth returns the chat's bearer token, or replies with login
// instructions and reports false.
func (b *Bot) requireAuth(ctx context.Context, chatID int64) (string, bool) {
	s := b.session(ctx, chatID)
	if !s.Session().Authenticated {
		b.reply(chatID, loginHint)
		return "", false
	}
	token, err := s.Token(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNoToken) {
			b.log.Error("read token", "chat_id", chatID, "error", err)
		}
		b.reply(chatID, loginHint)
		return "", false
	}
	return token, true
}

// expired re-validates the session after the API rejected a token.
func (b *Bot) expired(ctx context.Context, chatID int64, err error) bool {
	if !errors.Is(err, client.ErrUnauthenticated) {
		return false
	}
	_ = b.session(ctx, chatID).CheckAuth(ctx)
	b.reply(chatID, "Your login has expired. "+loginHint)
	return true
}

func (b *Bot) handleMyListings(ctx context.Context, chatID int64) {
	token, ok := b.requireAuth(ctx, chatID)
	if !ok {
		return
	}
	listings, err := b.market.MyListings(ctx, token)
	if err != nil {
		if !b.expired(ctx, chatID, err) {
			b.reply(chatID, "Could not load your listings: "+notice(err)+".")
		}
		return
	}
	b.reply(chatID, FormatMyListings(b.session(ctx, chatID).Session().User, listings))
}

func (b *Bot) handleWhatsApp(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /whatsapp <number>")
		return
	}
	token, ok := b.requireAuth(ctx, chatID)
	if !ok {
		return
	}
	if err := b.market.UpdateWhatsApp(ctx, token, args); err != nil {
		if !b.expired(ctx, chatID, err) {
			b.reply(chatID, "Could not update WhatsApp number: "+notice(err)+".")
		}
		return
	}
	_ = b.session(ctx, chatID).CheckAuth(ctx)
	b.reply(chatID, "WhatsApp number updated.")
}

func (b *Bot) handlePost(ctx context.Context, chatID int64, args string) {
	l, err := ParsePostArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	token, ok := b.requireAuth(ctx, chatID)
	if !ok {
		return
	}
	created, err := b.market.Create(ctx, token, l, nil)
	if err != nil {
		if !b.expired(ctx, chatID, err) {
			b.reply(chatID, "Could not post listing: "+notice(err)+".")
		}
		return
	}
	b.reply(chatID, fmt.Sprintf("Listing posted!\n%s\n/view %s", created.Title, created.ID))
}
