// Package errors holds the sentinel errors and structured error types of
// the app store client.
package errors

import "fmt"

// Common error types.
var (
	// Config errors.
	ErrEmptyConfigPath  = fmt.Errorf("config file path cannot be empty")
	ErrConfigParse      = fmt.Errorf("failed to parse config")
	ErrConfigValidation = fmt.Errorf("invalid configuration")
	ErrConfigEncode     = fmt.Errorf("failed to encode config")
	ErrConfigDirectory  = fmt.Errorf("failed to create config directory")
	ErrConfigFileExists = fmt.Errorf("configuration file already exists")

	// Repository errors.
	ErrSignatureFormat  = fmt.Errorf("malformed signature")
	ErrSignatureKeyID   = fmt.Errorf("signature key id mismatch")
	ErrSignatureInvalid = fmt.Errorf("signature verification failed")
	ErrPublicKeyFormat  = fmt.Errorf("malformed public key")
	ErrRepoBodyFormat   = fmt.Errorf("malformed repository body")
	ErrUnexpectedStatus = fmt.Errorf("unexpected status code")
	ErrRepoDowngrade    = fmt.Errorf("repository timestamp downgrade")
	ErrRepoCacheFormat  = fmt.Errorf("malformed repository cache")
	ErrRepoSchema       = fmt.Errorf("repository metadata failed schema validation")

	// Catalog errors.
	ErrCatalogParse    = fmt.Errorf("failed to parse catalog")
	ErrStaticDepFormat = fmt.Errorf("malformed static dependency")

	// Install errors.
	ErrSizeMismatch            = fmt.Errorf("size mismatch")
	ErrDigestMismatch          = fmt.Errorf("sha256 mismatch")
	ErrUnexpectedCacheSize     = fmt.Errorf("unexpected size of cached file")
	ErrHasCode                 = fmt.Errorf("package declared as noCode contains code")
	ErrPackageVanished         = fmt.Errorf("package was uninstalled during update")
	ErrMultiInstallUnsupported = fmt.Errorf("multi-package sessions are not supported")
	ErrInstallAborted          = fmt.Errorf("installation aborted")
	ErrInstallTimeout          = fmt.Errorf("timed out waiting for installation result")
	ErrNoVariant               = fmt.Errorf("package has no variant")
	ErrPackageUnknown          = fmt.Errorf("unknown package")

	// Cache errors.
	ErrCacheDirectory = fmt.Errorf("cache directory cannot be empty")
	ErrCacheClean     = fmt.Errorf("failed to clean cache")
	ErrCacheInfo      = fmt.Errorf("failed to get cache info")

	// Device errors.
	ErrDeviceRoot   = fmt.Errorf("device root cannot be empty")
	ErrSessionState = fmt.Errorf("installer session is in the wrong state")

	// Publishing errors.
	ErrMetadataCanonical = fmt.Errorf("metadata is not valid JSON")
	ErrApkName           = fmt.Errorf("invalid apk file name")
)

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
