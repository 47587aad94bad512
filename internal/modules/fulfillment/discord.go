package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgemunganga/fanbase-backend/internal/discord"
	"github.com/georgemunganga/fanbase-backend/internal/modules/benefit"
	"github.com/georgemunganga/fanbase-backend/internal/modules/subscription"
	"github.com/georgemunganga/fanbase-backend/internal/modules/user"
	"github.com/rs/zerolog/log"
)

// Grant property keys written by the Discord service.
const (
	discordGuildKey   = "guild_id"
	discordRoleKey    = "role_id"
	discordAccountKey = "account_id"
)

type discordService struct {
	client discord.Client
}

// NewDiscordService returns the service that assigns a guild role to the
// subscriber's linked Discord account.
func NewDiscordService(client discord.Client) Service {
	return &discordService{client: client}
}

func (s *discordService) Grant(ctx context.Context, b *benefit.Benefit, sub *subscription.Subscription, u *user.User,
	props Properties, opts GrantOptions) (Properties, error) {
	p, err := discordProperties(b)
	if err != nil {
		return nil, err
	}
	if !u.HasDiscordAccount() {
		return nil, &PreconditionError{
			Message: "the user has not linked a Discord account",
			Payload: map[string]interface{}{"action": "link_discord_account", "guild_id": p.GuildID},
		}
	}
	accountID := *u.DiscordUserID

	// A role from a previous configuration is removed before the new one is
	// added.
	if opts.Update {
		oldGuild, oldRole := props.String(discordGuildKey), props.String(discordRoleKey)
		oldAccount := props.String(discordAccountKey)
		if oldAccount == "" {
			oldAccount = accountID
		}
		if oldRole != "" && (oldGuild != p.GuildID || oldRole != p.RoleID) {
			if err := s.removeRole(ctx, oldGuild, oldAccount, oldRole); err != nil {
				return nil, classifyDiscordError(err, opts.Attempt)
			}
		}
	}

	member, err := s.client.GetGuildMember(ctx, p.GuildID, accountID)
	if errors.Is(err, discord.ErrMemberNotFound) {
		return nil, notGuildMember(p.GuildID)
	}
	if err != nil {
		return nil, classifyDiscordError(err, opts.Attempt)
	}
	if !member.HasRole(p.RoleID) {
		err := s.client.AddGuildMemberRole(ctx, p.GuildID, accountID, p.RoleID)
		if errors.Is(err, discord.ErrMemberNotFound) {
			return nil, notGuildMember(p.GuildID)
		}
		if err != nil {
			return nil, classifyDiscordError(err, opts.Attempt)
		}
		log.Debug().
			Str("benefit_id", b.ID.String()).
			Str("guild_id", p.GuildID).
			Str("role_id", p.RoleID).
			Msg("discord role added")
	}

	out := props.Clone()
	out[discordGuildKey] = p.GuildID
	out[discordRoleKey] = p.RoleID
	out[discordAccountKey] = accountID
	return out, nil
}

// Revoke removes the role recorded at grant time, which may differ from the
// benefit's current configuration.
func (s *discordService) Revoke(ctx context.Context, b *benefit.Benefit, sub *subscription.Subscription, u *user.User,
	props Properties, attempt int) (Properties, error) {
	guildID, roleID := props.String(discordGuildKey), props.String(discordRoleKey)
	accountID := props.String(discordAccountKey)

	if guildID != "" && roleID != "" && accountID != "" {
		if err := s.removeRole(ctx, guildID, accountID, roleID); err != nil {
			return nil, classifyDiscordError(err, attempt)
		}
	}

	out := props.Clone()
	delete(out, discordRoleKey)
	delete(out, discordAccountKey)
	return out, nil
}

func (s *discordService) RequiresUpdate(ctx context.Context, b *benefit.Benefit, previous benefit.Properties) (bool, error) {
	current, err := discordProperties(b)
	if err != nil {
		return false, err
	}
	prev, ok := previous.(benefit.DiscordProperties)
	if !ok {
		return true, nil
	}
	return current.GuildID != prev.GuildID || current.RoleID != prev.RoleID, nil
}

// removeRole is a no-op when the member left the guild or lacks the role.
func (s *discordService) removeRole(ctx context.Context, guildID, accountID, roleID string) error {
	member, err := s.client.GetGuildMember(ctx, guildID, accountID)
	if errors.Is(err, discord.ErrMemberNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !member.HasRole(roleID) {
		return nil
	}
	err = s.client.RemoveGuildMemberRole(ctx, guildID, accountID, roleID)
	if errors.Is(err, discord.ErrMemberNotFound) {
		return nil
	}
	return err
}

// classifyDiscordError turns throttling, 5xx responses and transport
// failures into retries. Other API errors and cancellation are fatal.
func classifyDiscordError(err error, attempt int) error {
	var rl *discord.RateLimitError
	if errors.As(err, &rl) {
		return Retry(rl.RetryAfter, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *discord.APIError
	if errors.As(err, &apiErr) && !apiErr.Temporary() {
		return err
	}
	return Retry(Backoff(attempt), err)
}

func notGuildMember(guildID string) error {
	return &PreconditionError{
		Message: "the user is not a member of the Discord server",
		Payload: map[string]interface{}{"action": "join_discord_server", "guild_id": guildID},
	}
}

func discordProperties(b *benefit.Benefit) (benefit.DiscordProperties, error) {
	p, ok := b.Properties.(benefit.DiscordProperties)
	if !ok {
		return p, fmt.Errorf("benefit %s: expected discord properties, got %T", b.ID, b.Properties)
	}
	return p, nil
}
