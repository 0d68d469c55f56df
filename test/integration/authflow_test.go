//go:build integration

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/authgate/authgate/internal/auth"
	authpg "github.com/authgate/authgate/internal/auth/postgres"
	"github.com/authgate/authgate/internal/gate"
	"github.com/authgate/authgate/internal/httpapi"
	"github.com/authgate/authgate/internal/store"
)

const testCookieName = "_my_session_id"

// startStack boots a PostgreSQL container, migrates it, and serves the full
// HTTP API on an ephemeral port.
func startStack() (baseURL string, shutdown func(), err error) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("authgate_test"),
		tcpostgres.WithUsername("authgate"),
		tcpostgres.WithPassword("authgate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return "", nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return "", nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return "", nil, err
	}
	if err := migrator.Up(); err != nil {
		return "", nil, err
	}
	_ = migrator.Close()

	var pool *pgxpool.Pool
	pool, err = store.NewPool(ctx, connStr, nil)
	if err != nil {
		return "", nil, err
	}

	users := authpg.NewUserRepository(pool)
	sessions := authpg.NewSessionStore(pool)
	hasher := auth.NewArgon2idHasher()

	manager, err := auth.NewSessionManager(sessions, time.Hour)
	if err != nil {
		return "", nil, err
	}
	svc, err := auth.NewService(users, manager, hasher)
	if err != nil {
		return "", nil, err
	}
	resets, err := auth.NewPasswordResetService(users, hasher)
	if err != nil {
		return "", nil, err
	}

	exempt, err := gate.NewPathMatcher([]string{"/", "/users/", "/sessions/", "/reset_password/"})
	if err != nil {
		return "", nil, err
	}
	strategy, err := gate.NewSessionStrategy(svc, exempt, testCookieName)
	if err != nil {
		return "", nil, err
	}

	api, err := httpapi.NewServer(httpapi.Config{
		Addr:          "127.0.0.1:0",
		CookieName:    testCookieName,
		SessionMaxAge: time.Hour,
	}, svc, resets, strategy, nil, nil)
	if err != nil {
		return "", nil, err
	}
	if _, err := api.Start(); err != nil {
		return "", nil, err
	}

	shutdown = func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = api.Stop(stopCtx)
		pool.Close()
		_ = container.Terminate(ctx)
	}
	return "http://" + api.Addr(), shutdown, nil
}

// newClient returns an HTTP client with a cookie jar that does not follow
// redirects, so logout's 302 stays observable.
func newClient() *http.Client {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func postForm(client *http.Client, target string, form url.Values) *http.Response {
	resp, err := client.PostForm(target, form)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func doForm(client *http.Client, method, target string, form url.Values) *http.Response {
	req, err := http.NewRequest(method, target, strings.NewReader(form.Encode()))
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func decodeBody(resp *http.Response) map[string]string {
	defer resp.Body.Close()
	var body map[string]string
	Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
	return body
}

var _ = Describe("AuthFlow", Ordered, func() {
	var baseURL string
	var shutdown func()

	BeforeAll(func() {
		var err error
		baseURL, shutdown, err = startStack()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		shutdown()
	})

	It("serves the welcome route without authentication", func() {
		resp, err := http.Get(baseURL + "/")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(decodeBody(resp)["message"]).To(Equal("Bienvenue"))
	})

	It("registers a user", func() {
		client := newClient()
		resp := postForm(client, baseURL+"/users", url.Values{
			"email":    {"alice@example.com"},
			"password": {"secret"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(decodeBody(resp)["email"]).To(Equal("alice@example.com"))
	})

	It("rejects a duplicate registration", func() {
		client := newClient()
		resp := postForm(client, baseURL+"/users", url.Values{
			"email":    {"alice@example.com"},
			"password": {"other"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		resp.Body.Close()
	})

	It("denies the profile without a session", func() {
		resp, err := http.Get(baseURL + "/profile")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		resp.Body.Close()
	})

	It("logs in, reads the profile, and logs out", func() {
		client := newClient()

		By("logging in with valid credentials")
		resp := postForm(client, baseURL+"/sessions", url.Values{
			"email":    {"alice@example.com"},
			"password": {"secret"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		resp.Body.Close()

		base, err := url.Parse(baseURL)
		Expect(err).NotTo(HaveOccurred())
		cookies := client.Jar.Cookies(base)
		Expect(cookies).NotTo(BeEmpty())
		Expect(cookies[0].Name).To(Equal(testCookieName))

		By("reading the profile with the session cookie")
		resp, err = client.Get(baseURL + "/profile")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(decodeBody(resp)["email"]).To(Equal("alice@example.com"))

		By("logging out")
		resp = doForm(client, http.MethodDelete, baseURL+"/sessions", url.Values{})
		Expect(resp.StatusCode).To(Equal(http.StatusFound))
		resp.Body.Close()

		By("verifying the session is gone")
		resp, err = client.Get(baseURL + "/profile")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		resp.Body.Close()
	})

	It("rejects a login with a wrong password", func() {
		client := newClient()
		resp := postForm(client, baseURL+"/sessions", url.Values{
			"email":    {"alice@example.com"},
			"password": {"wrong"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		resp.Body.Close()
	})

	It("resets a password end to end", func() {
		client := newClient()

		By("issuing a reset token")
		resp := postForm(client, baseURL+"/reset_password", url.Values{
			"email": {"alice@example.com"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		token := decodeBody(resp)["reset_token"]
		Expect(token).NotTo(BeEmpty())

		By("redeeming the token with a new password")
		resp = doForm(client, http.MethodPut, baseURL+"/reset_password", url.Values{
			"email":        {"alice@example.com"},
			"reset_token":  {token},
			"new_password": {"rotated"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		resp.Body.Close()

		By("rejecting a second redemption of the same token")
		resp = doForm(client, http.MethodPut, baseURL+"/reset_password", url.Values{
			"email":        {"alice@example.com"},
			"reset_token":  {token},
			"new_password": {"again"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		resp.Body.Close()

		By("logging in with the new password")
		resp = postForm(client, baseURL+"/sessions", url.Values{
			"email":    {"alice@example.com"},
			"password": {"rotated"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		resp.Body.Close()

		By("rejecting the old password")
		resp = postForm(client, baseURL+"/sessions", url.Values{
			"email":    {"alice@example.com"},
			"password": {"secret"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		resp.Body.Close()
	})

	It("refuses a reset token for an unknown email", func() {
		client := newClient()
		resp := postForm(client, baseURL+"/reset_password", url.Values{
			"email": {"ghost@example.com"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		resp.Body.Close()
	})
})
