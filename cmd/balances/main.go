/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command balances is a read-only report over every provisioned business's
// Utility and WorkingFunds float (§4.2), used to eyeball ledger health
// without going through the RPC surface.
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/common"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/config"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store/sqlite"

	"go.uber.org/zap"
)

type reportStats struct {
	totalBusinesses int
	totalUtility    int64
	totalWorking    int64
}

func minorToString(minor int64) string {
	whole := minor / 100
	frac := minor % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d", whole, frac)
}

func printBusiness(ctx context.Context, st store.Store, b *models.Business, isLast bool, logger *zap.Logger) (int64, int64) {
	prefix := common.BoxPrefix(isLast)
	detail := common.BoxDetailPrefix(isLast)

	utility, err := st.GetAccount(ctx, b.UtilityAccount)
	if err != nil {
		logger.Error("failed to load utility account", zap.String("business_id", b.Id), zap.Error(err))
		return 0, 0
	}
	working, err := st.GetAccount(ctx, b.WorkingFunds)
	if err != nil {
		logger.Error("failed to load working funds account", zap.String("business_id", b.Id), zap.Error(err))
		return 0, 0
	}

	fmt.Printf("%s%-24s short_code=%-10s outstanding_charges=%s\n", prefix, b.Name, b.ShortCode, minorToString(b.ChargesAmount))
	fmt.Printf("%sutility:       %15s\n", detail, minorToString(utility.Balance))
	fmt.Printf("%sworking_funds: %15s\n", detail, minorToString(working.Balance))

	return utility.Balance, working.Balance
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	shortCodeFlag := flag.String("short-code", "", "restrict the report to a single business short code (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Info("connecting to database", zap.String("path", cfg.Database.Path))
	st, err := sqlite.Open(ctx, sqlite.Config{
		Path:         cfg.Database.Path,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer st.Close()

	var businesses []*models.Business
	if *shortCodeFlag != "" {
		b, err := st.GetBusinessByShortCode(ctx, *shortCodeFlag)
		if err != nil {
			logger.Fatal("failed to load business", zap.String("short_code", *shortCodeFlag), zap.Error(err))
		}
		businesses = []*models.Business{b}
	} else {
		businesses, err = st.ListBusinesses(ctx)
		if err != nil {
			logger.Fatal("failed to list businesses", zap.Error(err))
		}
	}

	common.PrintHeader("BUSINESS BALANCE REPORT", common.DefaultWidth)

	stats := reportStats{}
	for i, b := range businesses {
		isLast := i == len(businesses)-1
		utility, working := printBusiness(ctx, st, b, isLast, logger)
		stats.totalBusinesses++
		stats.totalUtility += utility
		stats.totalWorking += working
	}

	summary := fmt.Sprintf("SUMMARY: %d businesses, utility=%s working_funds=%s",
		stats.totalBusinesses, minorToString(stats.totalUtility), minorToString(stats.totalWorking))
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("balance report completed", zap.Int("businesses", stats.totalBusinesses))
}
