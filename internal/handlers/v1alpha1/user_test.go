package v1alpha1_test

import (
	"fmt"
	"net/http"
	"time"

	"github.com/distcalc/orchestrator/internal/config"
	handlers "github.com/distcalc/orchestrator/internal/handlers/v1alpha1"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("user handlers with local authentication", Ordered, func() {
	var env *testEnv

	credentials := func(login, password string) map[string]string {
		return map[string]string{"login": login, "password": password}
	}

	login := func(name, password string) string {
		code, body := env.do(http.MethodPost, "/api/v1/login", credentials(name, password), "")
		Expect(code).To(Equal(http.StatusOK))
		token := decode[handlers.LoginReply](body).JWT
		Expect(token).ToNot(BeEmpty())
		return token
	}

	BeforeAll(func() {
		env = newTestEnv(config.Auth{
			AuthenticationType: config.AuthLocal,
			SecretKey:          "secret",
			TokenTTL:           time.Hour,
		})

		for _, name := range []string{"batman", "robin"} {
			code, body := env.do(http.MethodPost, "/api/v1/register", credentials(name, "gotham"), "")
			Expect(code).To(Equal(http.StatusOK))
			Expect(decode[handlers.SuccessReply](body).Success).To(BeTrue())
		}
	})

	AfterAll(func() {
		env.Close()
	})

	AfterEach(func() {
		env.db.Exec("DELETE FROM calculations;")
	})

	Context("register and login", func() {
		It("refuses a duplicate login", func() {
			code, _ := env.do(http.MethodPost, "/api/v1/register", credentials("batman", "other"), "")
			Expect(code).To(Equal(http.StatusConflict))
		})

		It("refuses invalid credentials", func() {
			code, _ := env.do(http.MethodPost, "/api/v1/register", credentials("bat man", "gotham"), "")
			Expect(code).To(Equal(http.StatusBadRequest))

			code, _ = env.do(http.MethodPost, "/api/v1/login", credentials("batman", "joker"), "")
			Expect(code).To(Equal(http.StatusUnauthorized))

			code, _ = env.do(http.MethodPost, "/api/v1/login", credentials("nobody", "gotham"), "")
			Expect(code).To(Equal(http.StatusUnauthorized))
		})
	})

	Context("get user", func() {
		It("returns the token's user without the password", func() {
			token := login("batman", "gotham")

			code, body := env.do(http.MethodPost, "/get-user", map[string]string{"login": "batman"}, token)
			Expect(code).To(Equal(http.StatusOK))
			Expect(string(body)).ToNot(ContainSubstring("password"))
			reply := decode[handlers.UserReply](body)
			Expect(reply.Login).To(Equal("batman"))
			Expect(reply.ID).ToNot(BeZero())
		})

		It("reports another user as not found", func() {
			token := login("batman", "gotham")

			code, _ := env.do(http.MethodPost, "/get-user", map[string]string{"login": "robin"}, token)
			Expect(code).To(Equal(http.StatusNotFound))
		})

		It("requires a login and a token", func() {
			token := login("batman", "gotham")

			code, _ := env.do(http.MethodPost, "/get-user", map[string]string{}, token)
			Expect(code).To(Equal(http.StatusBadRequest))

			code, _ = env.do(http.MethodPost, "/get-user", map[string]string{"login": "batman"}, "")
			Expect(code).To(Equal(http.StatusUnauthorized))
		})
	})

	Context("calculations", func() {
		It("requires a token", func() {
			code, _ := env.do(http.MethodGet, "/get-all-calculations", nil, "")
			Expect(code).To(Equal(http.StatusUnauthorized))

			code, _ = env.do(http.MethodPost, "/submit-calculation", map[string]any{"operation": "1+1"}, "not-a-token")
			Expect(code).To(Equal(http.StatusUnauthorized))
		})

		It("acts for the token's user", func() {
			token := login("batman", "gotham")

			code, body := env.do(http.MethodPost, "/submit-calculation", map[string]any{"operation": "2*21"}, token)
			Expect(code).To(Equal(http.StatusCreated))
			reply := decode[handlers.SubmitReply](body)
			Expect(reply.UserID).ToNot(BeZero())

			code, body = env.do(http.MethodGet, "/get-all-calculations", nil, token)
			Expect(code).To(Equal(http.StatusOK))
			Expect(decode[[]handlers.CalculationReply](body)).To(HaveLen(1))

			code, body = env.do(http.MethodGet, fmt.Sprintf("/get-calculations-by-user?userId=%d", reply.UserID), nil, token)
			Expect(code).To(Equal(http.StatusOK))
			Expect(decode[[]handlers.CalculationReply](body)).To(HaveLen(1))
		})

		It("refuses to act for another user", func() {
			token := login("batman", "gotham")

			code, body := env.do(http.MethodPost, "/submit-calculation", map[string]any{"operation": "1+1"}, token)
			Expect(code).To(Equal(http.StatusCreated))
			own := decode[handlers.SubmitReply](body).UserID

			code, _ = env.do(http.MethodPost, "/submit-calculation", map[string]any{"userId": own + 100, "operation": "1+1"}, token)
			Expect(code).To(Equal(http.StatusForbidden))

			code, _ = env.do(http.MethodGet, fmt.Sprintf("/get-calculations-by-user?userId=%d", own+100), nil, token)
			Expect(code).To(Equal(http.StatusForbidden))
		})

		It("hides other users' calculations", func() {
			code, body := env.do(http.MethodPost, "/submit-calculation", map[string]any{"operation": "1+1"}, login("batman", "gotham"))
			Expect(code).To(Equal(http.StatusCreated))
			id := decode[handlers.SubmitReply](body).ID

			robin := login("robin", "gotham")
			code, _ = env.do(http.MethodGet, fmt.Sprintf("/get-calculation-result?id=%d", id), nil, robin)
			Expect(code).To(Equal(http.StatusNotFound))

			code, body = env.do(http.MethodGet, "/get-all-calculations", nil, robin)
			Expect(code).To(Equal(http.StatusOK))
			Expect(decode[[]handlers.CalculationReply](body)).To(BeEmpty())
		})

		It("clears only the token user's calculations", func() {
			batman, robin := login("batman", "gotham"), login("robin", "gotham")
			env.do(http.MethodPost, "/submit-calculation", map[string]any{"operation": "1+1"}, batman)
			env.do(http.MethodPost, "/submit-calculation", map[string]any{"operation": "2+2"}, robin)

			code, _ := env.do(http.MethodPost, "/clear-all-calculations", nil, robin)
			Expect(code).To(Equal(http.StatusOK))

			_, body := env.do(http.MethodGet, "/get-all-calculations", nil, batman)
			Expect(decode[[]handlers.CalculationReply](body)).To(HaveLen(1))
			_, body = env.do(http.MethodGet, "/get-all-calculations", nil, robin)
			Expect(decode[[]handlers.CalculationReply](body)).To(BeEmpty())
		})
	})

	Context("status routes", func() {
		It("stay open without a token", func() {
			code, _ := env.do(http.MethodGet, "/orchestrator-status", nil, "")
			Expect(code).To(Equal(http.StatusOK))

			code, _ = env.do(http.MethodGet, "/ping-servers", nil, "")
			Expect(code).To(Equal(http.StatusOK))
		})
	})
})
