package handler

import (
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"content-transformer/internal/usecase"
)

const defaultOwnerClaim = "sub"

// ownerFromRequest reads the caller identity placed on the request by the API
// Gateway authorizer. Tokens are verified upstream; nothing is checked here
// beyond presence.
func ownerFromRequest(req events.APIGatewayV2HTTPRequest, claim string) (string, error) {
	authz := req.RequestContext.Authorizer
	if authz == nil {
		return "", &usecase.Error{Code: usecase.ErrorUnauthorized, Reason: usecase.ReasonMissingIdentity}
	}
	if authz.JWT != nil {
		if owner := strings.TrimSpace(authz.JWT.Claims[claim]); owner != "" {
			return owner, nil
		}
	}
	// Lambda authorizers put their context under Lambda instead of JWT claims.
	if v, ok := authz.Lambda[claim].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	return "", &usecase.Error{Code: usecase.ErrorUnauthorized, Reason: usecase.ReasonMissingIdentity}
}
