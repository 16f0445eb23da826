package httpx

import (
    "net"
    "net/http"
    "time"
)

// New returns an http.Client with a tuned transport for bursty outbound
// fan-out: generous idle pools, HTTP/2, and per-stage timeouts so a dead
// upstream surfaces as an error instead of a hung batch.
func New(timeout time.Duration) *http.Client {
    transport := &http.Transport{
        Proxy: http.ProxyFromEnvironment,
        DialContext: (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
        MaxIdleConns:          200,
        MaxIdleConnsPerHost:   100,
        MaxConnsPerHost:       100,
        ForceAttemptHTTP2:     true,
        IdleConnTimeout:       90 * time.Second,
        TLSHandshakeTimeout:   3 * time.Second,
        ExpectContinueTimeout: 1 * time.Second,
        ResponseHeaderTimeout: 5 * time.Second,
    }
    return &http.Client{Timeout: timeout, Transport: transport}
}
