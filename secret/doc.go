// Package secret resolves environment variables and secret references in
// the default fetch headers, so credentials never live in cache configuration.
//
// References use the prefix "secretref:":
//   - Full value:  secretref:env:API_TOKEN
//   - Inline use:  Bearer secretref:env:API_TOKEN
//
// Values are resolved once when a session is built.
package secret
