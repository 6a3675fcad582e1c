package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const callbackPath = "/roomsync"

// Login runs the OAuth consent flow. It prints the consent URL to w, waits
// for the redirect on addr and returns the token as JSON, ready to be stored
// in the password store.
func (c *Client) Login(ctx context.Context, w io.Writer, addr string) ([]byte, error) {
	state := fmt.Sprintf("roomsync-%d", time.Now().UTC().UnixNano())
	authURL := c.oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(w, "\nGo to the following link in your browser\n%s\n", authURL)

	mux := http.NewServeMux()
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	var (
		token   *oauth2.Token
		authErr error
	)

	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			go server.Shutdown(context.WithoutCancel(ctx))
		}()

		query := req.URL.Query()
		if query.Get("state") != state {
			authErr = errors.New("google: oauth link is not valid")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		token, authErr = c.oauthCfg.Exchange(ctx, query.Get("code"))
		if authErr != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, "Unable to retrieve token:", authErr)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "All good, you can close this window!")
	})

	serverCh := make(chan error, 1)
	go func() {
		serverCh <- server.ListenAndServe()
	}()

	var svrErr error
	select {
	case svrErr = <-serverCh:
	case <-ctx.Done():
		server.Close()
		<-serverCh
		return nil, ctx.Err()
	}

	if svrErr != nil && svrErr != http.ErrServerClosed {
		return nil, svrErr
	}
	if authErr != nil {
		return nil, authErr
	}
	return json.Marshal(token)
}
