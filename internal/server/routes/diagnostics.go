package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/mvn-hub/mvn-hub/internal/server"
	"github.com/mvn-hub/mvn-hub/internal/version"
)

// RegisterDiagnostics 暴露 /-/healthz 与 /-/stats 诊断接口，
// 供探活与运维查询仓库缓存状态。
func RegisterDiagnostics(app *fiber.App, registry *server.RepoRegistry) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": version.Version,
		})
	})

	app.Get("/-/stats", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"repositories": registry.Stats(),
		})
	})
}
