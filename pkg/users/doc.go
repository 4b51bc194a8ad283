// Package users implements account signup, login, the account view and
// update, account deletion and the password reset flow.
//
// Login keys sessions on the user's email: the issued JWT's subject is the
// email, and the request filter resolves it back to an identity through
// ResolveIdentity. Changing the email therefore ends every open session.
//
// Reset tokens are mailed in clear and stored hashed. Each account holds at
// most one token; requesting a new one replaces the old. Redemption swaps the
// password hash and deletes the token in one transaction.
package users
