package auth_test

import (
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/distcalc/orchestrator/internal/auth"
	"github.com/distcalc/orchestrator/internal/config"
	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var secret = []byte("s3cr3t")

var _ = Describe("local authentication", func() {
	var authenticator *auth.LocalAuthenticator

	BeforeEach(func() {
		var err error
		authenticator, err = auth.NewLocalAuthenticator(secret)
		Expect(err).To(BeNil())
	})

	Context("authenticate", func() {
		It("accepts a token it issued", func() {
			token, err := auth.GenerateToken(secret, time.Hour, 7, "batman")
			Expect(err).To(BeNil())

			user, err := authenticator.Authenticate(token)
			Expect(err).To(BeNil())
			Expect(user.ID).To(Equal(uint(7)))
			Expect(user.Login).To(Equal("batman"))
			Expect(user.Token).ToNot(BeNil())
		})

		It("rejects an expired token", func() {
			token, err := auth.GenerateToken(secret, -time.Minute, 7, "batman")
			Expect(err).To(BeNil())

			_, err = authenticator.Authenticate(token)
			Expect(err).ToNot(BeNil())
		})

		It("rejects a token signed with another key", func() {
			token, err := auth.GenerateToken([]byte("other"), time.Hour, 7, "batman")
			Expect(err).To(BeNil())

			_, err = authenticator.Authenticate(token)
			Expect(err).ToNot(BeNil())
		})

		It("rejects a token without expiration", func() {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"userID": 7, "login": "batman"}).SignedString(secret)
			Expect(err).To(BeNil())

			_, err = authenticator.Authenticate(token)
			Expect(err).ToNot(BeNil())
		})

		It("requires a secret", func() {
			_, err := auth.NewLocalAuthenticator(nil)
			Expect(err).ToNot(BeNil())
		})
	})

	Context("middleware", func() {
		var (
			seen    *auth.User
			handler http.Handler
		)

		BeforeEach(func() {
			seen = nil
			handler = authenticator.Authenticator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				user := auth.MustHaveUser(r.Context())
				seen = &user
				w.WriteHeader(http.StatusOK)
			}))
		})

		It("stores the user in the request context", func() {
			token, err := auth.GenerateToken(secret, time.Hour, 3, "robin")
			Expect(err).To(BeNil())

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(seen).ToNot(BeNil())
			Expect(seen.ID).To(Equal(uint(3)))
		})

		It("refuses requests without a token", func() {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			Expect(seen).To(BeNil())
		})

		It("refuses requests with a bad token", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer not-a-token")
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			Expect(rr.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Context("selection", func() {
		It("builds the authenticator named in the configuration", func() {
			a, err := auth.NewAuthenticator(config.Auth{AuthenticationType: config.AuthLocal, SecretKey: "key"})
			Expect(err).To(BeNil())
			Expect(a).To(BeAssignableToTypeOf(&auth.LocalAuthenticator{}))

			a, err = auth.NewAuthenticator(config.Auth{AuthenticationType: config.AuthNone})
			Expect(err).To(BeNil())
			Expect(a).To(BeAssignableToTypeOf(&auth.NoneAuthenticator{}))
		})

		It("lets everything through when disabled", func() {
			a, err := auth.NewNoneAuthenticator()
			Expect(err).To(BeNil())

			called := false
			h := a.Authenticator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, found := auth.UserFromContext(r.Context())
				Expect(found).To(BeFalse())
				called = true
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(called).To(BeTrue())
		})
	})
})
