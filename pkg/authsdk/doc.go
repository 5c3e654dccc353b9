/*
Package authsdk is the client side of the back office credential service,
plus the error body every back office service returns.

Log in once and let the Session keep the access token fresh:

	client := authsdk.NewSDKClient("https://gateway.example.com")

	session, err := client.AuthenticateWithPassword(ctx, "cashier01", "secret")
	if err != nil {
		var apiErr *authsdk.Error
		if errors.As(err, &apiErr) && apiErr.Kind == authsdk.KindAuthenticationFailed {
			// wrong credentials
		}
	}

	token, err := session.Token(ctx) // refreshed automatically near expiry

Refresh tokens are not rotated: Refresh returns the same refresh token it was
given, and it stays usable until it expires. Logout revokes the access token
immediately at the gateway.
*/
package authsdk
