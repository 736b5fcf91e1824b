package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mvn-hub/mvn-hub/internal/archive"
)

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *RepoRegistry
	ListenPort int
}

const contextKeyRequestID = "_mvnhub_request_id"

// NewApp builds a read-only Fiber application serving registered repository
// caches, with request-ID middleware and structured error handling.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("repo registry is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	app.Get("/:repo/*", handleFetch(opts))
	app.Head("/:repo/*", handleFetch(opts))

	return app, nil
}

// requestContextMiddleware 生成请求 ID，并把写方法挡在镜像之外：
// 发布只走会话关闭协议，这个面永远只读。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		method := c.Method()
		if method != fiber.MethodGet && method != fiber.MethodHead {
			opts.Logger.WithFields(logrus.Fields{
				"action":     "write_rejected",
				"method":     method,
				"path":       c.Path(),
				"request_id": reqID,
			}).Warn("只读镜像拒绝写方法")
			return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{
				"error": "read_only",
			})
		}
		return c.Next()
	}
}

func handleFetch(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		if isDiagnosticsPath(c.Path()) {
			return c.Next()
		}

		repo := c.Params("repo")
		resource := strings.TrimPrefix(c.Params("*"), "/")

		source, ok := opts.Registry.Lookup(repo)
		if !ok {
			opts.Logger.WithFields(logrus.Fields{
				"action":     "repo_lookup",
				"repo":       repo,
				"request_id": RequestID(c),
			}).Warn("repo unmapped")
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "repo_unmapped",
			})
		}

		data, err := source.ReadResource(resource)
		if err != nil {
			if errors.Is(err, archive.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "resource_not_found",
				})
			}
			opts.Logger.WithFields(logrus.Fields{
				"action":     "resource_read",
				"repo":       repo,
				"path":       resource,
				"request_id": RequestID(c),
			}).Error(err.Error())
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "resource_read_failed",
			})
		}

		opts.Logger.WithFields(logrus.Fields{
			"action":     "resource_served",
			"repo":       repo,
			"path":       resource,
			"bytes":      len(data),
			"request_id": RequestID(c),
		}).Debug("served from cache")

		c.Set(fiber.HeaderContentType, contentTypeFor(resource))
		return c.Send(data)
	}
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// contentTypeFor 按 Maven 仓库常见后缀挑选 Content-Type。
func contentTypeFor(resource string) string {
	switch {
	case strings.HasSuffix(resource, ".jar") || strings.HasSuffix(resource, ".war") || strings.HasSuffix(resource, ".ear"):
		return "application/java-archive"
	case strings.HasSuffix(resource, ".pom") || strings.HasSuffix(resource, ".xml"):
		return "application/xml"
	case strings.HasSuffix(resource, ".zip"):
		return "application/zip"
	case strings.HasSuffix(resource, ".gz") || strings.HasSuffix(resource, ".tgz"):
		return "application/gzip"
	case strings.HasSuffix(resource, ".md5") || strings.HasSuffix(resource, ".sha1") ||
		strings.HasSuffix(resource, ".sha256") || strings.HasSuffix(resource, ".asc"):
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
