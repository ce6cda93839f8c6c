// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by outbound service calls (stats sync polling).
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
