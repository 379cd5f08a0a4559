package proxy

import (
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/studio/pkg/llm"
)

// originSet is an immutable allow-list swapped atomically on reload.
type originSet struct {
	any     bool
	origins map[string]struct{}
}

func newOriginSet(origins []string) *originSet {
	set := &originSet{origins: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if o == "*" {
			set.any = true
			continue
		}
		set.origins[o] = struct{}{}
	}
	return set
}

func (s *originSet) allows(origin string) bool {
	if s.any {
		return true
	}
	_, ok := s.origins[origin]
	return ok
}

type originList struct {
	set atomic.Pointer[originSet]
}

func (l *originList) store(origins []string) {
	l.set.Store(newOriginSet(origins))
}

func (l *originList) allows(origin string) bool {
	return l.set.Load().allows(origin)
}

// cors rejects browser origins outside the allow-list, echoes the CORS
// headers for the rest and answers preflight requests itself.
func (p *Proxy) cors(methods string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)

		if origin != "" {
			c.Vary(fiber.HeaderOrigin)
			if !p.origins.allows(origin) {
				p.logger.Warn("origin rejected",
					zap.String("origin", origin),
					zap.String("path", c.Path()),
				)
				return c.Status(fiber.StatusForbidden).JSON(llm.ErrorResponse{Error: "Origin not allowed"})
			}
			c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
		}

		c.Set(fiber.HeaderAccessControlAllowMethods, methods)
		c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type, Authorization")
		c.Set(fiber.HeaderAccessControlMaxAge, "86400")

		if c.Method() == fiber.MethodOptions {
			c.Status(fiber.StatusOK)
			return nil
		}
		return c.Next()
	}
}
