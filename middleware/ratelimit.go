package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Dosada05/league-reservations/rate"
)

// RateLimit ограничивает запросы по IP клиента. При отказе лимитера сам
// запрос пропускается: деградация лимитера не должна ронять запись на турнир.
func RateLimit(limiter rate.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			allowed, retryAfter, err := limiter.Allow(r.Context(), key, time.Now())
			if err != nil {
				logger.Error("rate limiter unavailable, passing request through", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				seconds := int(retryAfter.Seconds())
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP берёт адрес из RemoteAddr: прокси-заголовки уже разобраны
// middleware.RealIP выше по цепочке, сырые заголовки здесь не читаются.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
