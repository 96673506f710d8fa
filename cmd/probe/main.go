package main

import (
	"context"
	"log"
	"net/url"
	"os"

	"github.com/k0kubun/pp"
	"resty.dev/v3"

	"github.com/xaenox/pairpost/internal/api"
	"github.com/xaenox/pairpost/internal/models"
	"github.com/xaenox/pairpost/pkg/config"
)

// probe signs in with PAIRPOST_EMAIL and PAIRPOST_PASSWORD and dumps what the
// bot would show that account.
func main() {
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatal(err)
	}

	client := api.NewClient(&api.ClientConfig{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           cfg.API.Timeout,
		TransportSettings: api.DefaultConfig.TransportSettings,

		ResponseMiddlewares: []resty.ResponseMiddleware{func(client *resty.Client, response *resty.Response) error {
			reqURL, err := url.Parse(response.Request.URL)
			if err != nil {
				return err
			}

			log.Printf("%s %s: %s [%s]", response.Request.Method, reqURL.Path, response.Status(), response.Duration())
			return nil
		}},
	})
	defer client.Close()

	ctx := context.Background()

	token, err := client.Login(ctx, models.Credentials{
		Email:    os.Getenv("PAIRPOST_EMAIL"),
		Password: os.Getenv("PAIRPOST_PASSWORD"),
	})
	if err != nil {
		log.Fatal(err)
	}
	client = client.WithToken(token.AccessToken)

	me, err := client.Me(ctx)
	if err != nil {
		log.Fatal(err)
	}
	pp.Printf("%+v\n", me)

	posts, err := client.Feed(ctx, api.FirstPage)
	if err != nil {
		log.Fatal(err)
	}
	pp.Printf("%+v\n", posts)

	agent, err := client.MyAgent(ctx)
	switch {
	case api.IsNotFound(err):
		log.Print("no agent yet")
	case err != nil:
		log.Fatal(err)
	default:
		pp.Printf("%+v\n", agent)
	}

	dashboard, err := client.Dashboard(ctx)
	if err != nil && !api.IsNotFound(err) {
		log.Fatal(err)
	}
	if dashboard != nil {
		pp.Printf("%+v\n", dashboard)
	}
}
