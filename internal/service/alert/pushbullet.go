package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const pushbulletTimeout = 10 * time.Second

type pushNote struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Pushbullet pushes a note to every device of the account owning the token.
type Pushbullet struct {
	client *resty.Client
	url    string
}

func NewPushbullet(token, url string) *Pushbullet {
	client := resty.New().
		SetTimeout(pushbulletTimeout).
		SetHeader("Access-Token", token).
		SetHeader("Content-Type", "application/json")
	return &Pushbullet{client: client, url: url}
}

func (p *Pushbullet) Send(ctx context.Context, title, body string) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(pushNote{Type: "note", Title: title, Body: body}).
		Post(p.url)
	if err != nil {
		return fmt.Errorf("pushbullet request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("pushbullet returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
