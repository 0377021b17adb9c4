package executor

import (
	"context"
	"fmt"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
	"github.com/devicelab-dev/hybrid-runner/pkg/orchestrator"
)

// RunOne runs a single test in its own browser session. The session is
// closed before RunOne returns.
func RunOne(ctx context.Context, sessions core.SessionFactory, build OrchestratorFactory, req orchestrator.Request) (*orchestrator.TestResult, error) {
	driver, closeSession, err := sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser session: %w", err)
	}
	defer func() {
		if err := closeSession(); err != nil {
			logger.Warn("closing session for %s: %v", req.TestPath, err)
		}
	}()
	return build(driver).RunTest(ctx, req)
}
