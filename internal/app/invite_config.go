package app

import (
	"github.com/charlesng35/teamchat/internal/cache"
	"github.com/charlesng35/teamchat/internal/models"
	"github.com/charlesng35/teamchat/internal/services"
)

// ServiceOptions translates invite settings into InviteService options. The
// base URL comes from the server section since links point at the web client.
func (c InviteConfig) ServiceOptions(baseURL string) []services.InviteOption {
	opts := []services.InviteOption{services.WithInviteBaseURL(baseURL)}
	if c.Expiry > 0 {
		opts = append(opts, services.WithInviteExpiry(c.Expiry))
	}
	if c.TokenBytes > 0 {
		opts = append(opts, services.WithInviteTokenSize(c.TokenBytes))
	}
	if c.LinkMaxDays > 0 {
		opts = append(opts, services.WithLinkMaxDays(c.LinkMaxDays))
	}
	return opts
}

// ConversationOptions builds the identity cache of the conversation store.
func (c MemoryCacheConfig) ConversationOptions() []services.ConversationOption {
	ttl := c.IdentityTTL
	if ttl <= 0 {
		ttl = cache.DefaultIdentityTTL
	}
	store := cache.NewMemoryCache[models.Conversation]("conversations", ttl, c.memoryOptions()...)
	return []services.ConversationOption{
		services.WithIdentityTTL(ttl),
		services.WithConversationCache(store),
	}
}

// MessageOptions builds the read-after-write cache of the message log.
func (c MemoryCacheConfig) MessageOptions() []services.MessageOption {
	ttl := c.LookupTTL
	if ttl <= 0 {
		ttl = cache.DefaultLookupTTL
	}
	store := cache.NewMemoryCache[[]models.Message]("messages", ttl, c.memoryOptions()...)
	return []services.MessageOption{
		services.WithLookupTTL(ttl),
		services.WithMessageCache(store),
	}
}

func (c MemoryCacheConfig) memoryOptions() []cache.MemoryOption {
	if c.Size <= 0 {
		return nil
	}
	return []cache.MemoryOption{cache.WithMemorySize(c.Size)}
}
