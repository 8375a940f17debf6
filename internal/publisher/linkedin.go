package publisher

import (
	"context"
	"fmt"
)

// LinkedInPublisher is a placeholder: LinkedIn's share API needs an app
// review and member URN lookup that this tool doesn't implement, so every
// publish reports "not available".
type LinkedInPublisher struct{}

func NewLinkedIn() *LinkedInPublisher { return &LinkedInPublisher{} }

func (LinkedInPublisher) Platform() string { return LinkedIn }

func (LinkedInPublisher) Publish(context.Context, string) error {
	return fmt.Errorf("%w: linkedin posting requires additional setup", ErrNotSupported)
}
