package internal_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/frahmantamala/receptionist-billing/internal"
)

var _ = ginkgo.Describe("AppError", func() {
	ginkgo.It("should be found through wrapping", func() {
		wrapped := fmt.Errorf("%w: signature mismatch", internal.ErrInvalidToken)

		appErr, ok := internal.IsAppError(wrapped)

		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(appErr.StatusCode).To(gomega.Equal(http.StatusUnauthorized))
		gomega.Expect(errors.Is(wrapped, internal.ErrInvalidToken)).To(gomega.BeTrue())
	})

	ginkgo.It("should not serialize its cause", func() {
		appErr := internal.NewExternalError("gateway down", internal.ErrCodeGatewayUnavailable, http.StatusBadGateway, errors.New("dial tcp 10.0.0.5:443"))

		status, body := appErr.ToHTTPResponse()
		encoded, err := json.Marshal(body)

		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(status).To(gomega.Equal(http.StatusBadGateway))
		gomega.Expect(string(encoded)).To(gomega.ContainSubstring("GATEWAY_UNAVAILABLE"))
		gomega.Expect(string(encoded)).ToNot(gomega.ContainSubstring("10.0.0.5"))
	})

	ginkgo.It("should answer 429 for rate limiting", func() {
		gomega.Expect(internal.NewRateLimitError("slow down").StatusCode).To(gomega.Equal(http.StatusTooManyRequests))
	})

	ginkgo.It("should expose the caller on the context", func() {
		user := &internal.User{ID: "u", Permissions: []string{internal.PermissionAdmin}}
		ctx := internal.ContextWithUser(context.Background(), user)

		got, ok := internal.UserFromContext(ctx)

		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(got.IsAdmin()).To(gomega.BeTrue())
		var nobody *internal.User
		gomega.Expect(nobody.IsAdmin()).To(gomega.BeFalse())
	})
})
