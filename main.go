package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/mvn-hub/mvn-hub/internal/config"
	"github.com/mvn-hub/mvn-hub/internal/logging"
	"github.com/mvn-hub/mvn-hub/internal/resilience"
	"github.com/mvn-hub/mvn-hub/internal/server"
	"github.com/mvn-hub/mvn-hub/internal/server/routes"
	"github.com/mvn-hub/mvn-hub/internal/session"
	"github.com/mvn-hub/mvn-hub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	serve       bool
	command     string
	args        []string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["repositories"] = len(cfg.Repositories)
		fields["auth_mode"] = cfg.Global.AuthMode()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 重试、熔断与限流状态全进程共享：同一个 Executor 贯穿所有会话。
	exec := newExecutor(cfg.Global, logger)
	ctx := context.Background()

	if opts.serve {
		return runServe(ctx, cfg, logger, exec, opts.configPath)
	}

	switch opts.command {
	case "put":
		return runPut(ctx, cfg, logger, exec, opts.args)
	case "get":
		return runGet(ctx, cfg, logger, exec, opts.args)
	case "ls":
		return runLs(ctx, cfg, logger, exec, opts.args)
	case "exists":
		return runExists(ctx, cfg, logger, exec, opts.args)
	case "":
		fmt.Fprintln(stdErr, "缺少命令: put|get|ls|exists，或使用 -serve 启动只读镜像")
		return 2
	default:
		fmt.Fprintf(stdErr, "未知命令: %s\n", opts.command)
		return 2
	}
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("mvn-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		serve      bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 MVN_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.BoolVar(&serve, "serve", false, "以只读镜像模式服务所有配置的仓库")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("MVN_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	opts := cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		serve:       serve,
	}
	if rest := fs.Args(); len(rest) > 0 {
		opts.command = rest[0]
		opts.args = rest[1:]
	}
	return opts, nil
}

func newExecutor(g config.GlobalConfig, logger *logrus.Logger) *resilience.Executor {
	return resilience.NewExecutor(resilience.Options{
		MaxRetries:       g.MaxRetries,
		InitialBackoff:   g.InitialBackoff.DurationValue(),
		MaxBackoff:       g.MaxBackoff.DurationValue(),
		FailureThreshold: g.FailureThreshold,
		SuccessThreshold: g.SuccessThreshold,
		Cooldown:         g.Cooldown.DurationValue(),
		RateWaitCeiling:  g.RateWaitCeiling.DurationValue(),
	}, logger)
}

// openRepoSession 按仓库名打开一个会话。
func openRepoSession(ctx context.Context, cfg *config.Config, logger *logrus.Logger, exec *resilience.Executor, repoName string) (*session.Session, error) {
	repo, ok := cfg.Repository(repoName)
	if !ok {
		return nil, fmt.Errorf("未配置的仓库: %s", repoName)
	}
	return session.Open(ctx, repo.Endpoint, session.Options{
		Global:   cfg.Global,
		Logger:   logger,
		Executor: exec,
	})
}

// runPut 把本地文件写入仓库并发布：put <repo> <resourcePath> <localFile>。
func runPut(ctx context.Context, cfg *config.Config, logger *logrus.Logger, exec *resilience.Executor, args []string) int {
	if len(args) != 3 {
		fmt.Fprintln(stdErr, "用法: put <repo> <resourcePath> <localFile>")
		return 2
	}
	repoName, resource, localFile := args[0], args[1], args[2]

	data, err := os.ReadFile(localFile)
	if err != nil {
		fmt.Fprintf(stdErr, "读取本地文件失败: %v\n", err)
		return 1
	}

	sess, err := openRepoSession(ctx, cfg, logger, exec, repoName)
	if err != nil {
		fmt.Fprintf(stdErr, "打开会话失败: %v\n", err)
		return 1
	}
	if err := sess.WriteResource(resource, data); err != nil {
		fmt.Fprintf(stdErr, "写入资源失败: %v\n", err)
		return 1
	}
	staged := len(sess.Staged())
	if err := sess.Close(ctx); err != nil {
		fmt.Fprintf(stdErr, "发布失败: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdOut, "已发布 %s（含派生产物共 %d 个条目）\n", resource, staged)
	return 0
}

// runGet 读出仓库资源：get <repo> <resourcePath> [localFile]。
// 省略 localFile 时内容写到标准输出。
func runGet(ctx context.Context, cfg *config.Config, logger *logrus.Logger, exec *resilience.Executor, args []string) int {
	if len(args) != 2 && len(args) != 3 {
		fmt.Fprintln(stdErr, "用法: get <repo> <resourcePath> [localFile]")
		return 2
	}
	repoName, resource := args[0], args[1]

	sess, err := openRepoSession(ctx, cfg, logger, exec, repoName)
	if err != nil {
		fmt.Fprintf(stdErr, "打开会话失败: %v\n", err)
		return 1
	}
	defer sess.Close(ctx)

	data, err := sess.ReadResource(resource)
	if err != nil {
		fmt.Fprintf(stdErr, "读取资源失败: %v\n", err)
		return 1
	}

	if len(args) == 3 {
		if err := os.WriteFile(args[2], data, 0o644); err != nil {
			fmt.Fprintf(stdErr, "写入本地文件失败: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdOut, "已保存 %s (%d 字节)\n", args[2], len(data))
		return 0
	}
	if _, err := stdOut.Write(data); err != nil {
		fmt.Fprintf(stdErr, "输出失败: %v\n", err)
		return 1
	}
	return 0
}

// runLs 按前缀列出仓库资源：ls <repo> [prefix]。
func runLs(ctx context.Context, cfg *config.Config, logger *logrus.Logger, exec *resilience.Executor, args []string) int {
	if len(args) != 1 && len(args) != 2 {
		fmt.Fprintln(stdErr, "用法: ls <repo> [prefix]")
		return 2
	}
	prefix := ""
	if len(args) == 2 {
		prefix = args[1]
	}

	sess, err := openRepoSession(ctx, cfg, logger, exec, args[0])
	if err != nil {
		fmt.Fprintf(stdErr, "打开会话失败: %v\n", err)
		return 1
	}
	defer sess.Close(ctx)

	for _, name := range sess.ListResources(prefix) {
		fmt.Fprintln(stdOut, name)
	}
	return 0
}

// runExists 判断资源是否存在：exists <repo> <resourcePath>。
// 存在输出 true、退出码 0；不存在输出 false、退出码 1。
func runExists(ctx context.Context, cfg *config.Config, logger *logrus.Logger, exec *resilience.Executor, args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(stdErr, "用法: exists <repo> <resourcePath>")
		return 2
	}

	sess, err := openRepoSession(ctx, cfg, logger, exec, args[0])
	if err != nil {
		fmt.Fprintf(stdErr, "打开会话失败: %v\n", err)
		return 1
	}
	defer sess.Close(ctx)

	if sess.ResourceExists(args[1]) {
		fmt.Fprintln(stdOut, "true")
		return 0
	}
	fmt.Fprintln(stdOut, "false")
	return 1
}

// runServe 以只读镜像模式服务所有配置的仓库。
func runServe(ctx context.Context, cfg *config.Config, logger *logrus.Logger, exec *resilience.Executor, configPath string) int {
	registry := server.NewRepoRegistry()
	sessions := make([]*session.Session, 0, len(cfg.Repositories))
	for _, repo := range cfg.Repositories {
		sess, err := openRepoSession(ctx, cfg, logger, exec, repo.Name)
		if err != nil {
			fmt.Fprintf(stdErr, "打开仓库 %s 失败: %v\n", repo.Name, err)
			return 1
		}
		sessions = append(sessions, sess)
		if err := registry.Register(repo.Name, sess); err != nil {
			fmt.Fprintf(stdErr, "注册仓库 %s 失败: %v\n", repo.Name, err)
			return 1
		}
	}
	// 镜像模式只读，关闭时零写入，不触发发布。
	defer func() {
		for _, sess := range sessions {
			_ = sess.Close(ctx)
		}
	}()

	fields := logging.BaseFields("startup", configPath)
	fields["repositories"] = len(cfg.Repositories)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["auth_mode"] = cfg.Global.AuthMode()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("只读镜像启动")

	if err := startHTTPServer(cfg, registry, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

func startHTTPServer(cfg *config.Config, registry *server.RepoRegistry, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnostics(app, registry)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
