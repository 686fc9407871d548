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

// Command setup seeds a fresh sandbox database with a demo business,
// project, merchant paybill and subscriber so a new host install has
// something to point the RPC surface at immediately.
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/common"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/config"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/feetable"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/security"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store/sqlite"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	demoBusinessName  = "Demo Merchant Ltd"
	demoShortCode     = "174379"
	demoSubscriberMSISDN = "254708374149"
	demoSubscriberPIN   = "1234"
	demoInitiatorPass   = "Safaricom999!*!"
)

func ensureFeeSchedule(ctx context.Context, st store.Store, logger *zap.Logger) error {
	seeded, err := st.FeeRulesSeeded(ctx)
	if err != nil {
		return fmt.Errorf("check fee rule seeding: %w", err)
	}
	if seeded {
		logger.Info("fee schedule already seeded")
		return nil
	}

	fees := feetable.New()
	if err := fees.SeedDefaults(); err != nil {
		return fmt.Errorf("load default fee schedule: %w", err)
	}
	if err := st.SaveFeeRules(ctx, fees.Rules()); err != nil {
		return fmt.Errorf("persist fee schedule: %w", err)
	}
	logger.Info("seeded default fee schedule", zap.Int("rules", len(fees.Rules())))
	return nil
}

func ensureDemoBusiness(ctx context.Context, st store.Store, logger *zap.Logger) (*models.Business, error) {
	if b, err := st.GetBusinessByShortCode(ctx, demoShortCode); err == nil {
		logger.Info("demo business already exists", zap.String("business_id", b.Id))
		return b, nil
	}

	utility, err := st.CreateAccount(ctx, models.AccountUtility, 0)
	if err != nil {
		return nil, fmt.Errorf("create utility account: %w", err)
	}
	working, err := st.CreateAccount(ctx, models.AccountWorkingFunds, 0)
	if err != nil {
		return nil, fmt.Errorf("create working funds account: %w", err)
	}

	business, err := st.CreateBusiness(ctx, demoBusinessName, demoShortCode, utility.Id, working.Id)
	if err != nil {
		return nil, fmt.Errorf("create business: %w", err)
	}

	if err := st.CreatePaybillTill(ctx, utility.Id, business.Id, demoShortCode, false); err != nil {
		return nil, fmt.Errorf("create paybill: %w", err)
	}

	privatePEM, publicPEM, err := security.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate security credential key pair: %w", err)
	}
	if err := st.SetSecurityCredential(ctx, business.Id, privatePEM, demoInitiatorPass); err != nil {
		return nil, fmt.Errorf("set security credential: %w", err)
	}

	logger.Info("created demo business",
		zap.String("business_id", business.Id),
		zap.String("short_code", business.ShortCode),
		zap.String("initiator_password", demoInitiatorPass))
	logger.Info("business security credential public key (encrypt InitiatorPassword with this for B2C calls)",
		zap.String("public_key_pem", publicPEM))

	return business, nil
}

func ensureDemoProject(ctx context.Context, st store.Store, business *models.Business, logger *zap.Logger) error {
	if _, cred, err := st.FindProjectByConsumerKey(ctx, "demoConsumerKey"); err == nil && cred != nil {
		logger.Info("demo project already exists")
		return nil
	}

	project := &models.Project{
		Id:              uuid.NewString(),
		BusinessId:      business.Id,
		Name:            "Demo Project",
		Mode:            models.ModeRealistic,
		UserPromptDelay: 0,
		ReceiptPrefix:   "NLJ",
	}
	cred := &models.APICredential{
		ProjectId:      project.Id,
		ConsumerKey:    "demoConsumerKey",
		ConsumerSecret: "demoConsumerSecret",
		Passkey:        "bfb279f9aa9bdbcf158e97dd71a467cd2e0c893059b10f78e6b72ada1ed2c919",
	}

	if err := st.CreateProject(ctx, project, cred); err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	logger.Info("created demo project",
		zap.String("project_id", project.Id),
		zap.String("consumer_key", cred.ConsumerKey),
		zap.String("consumer_secret", cred.ConsumerSecret),
		zap.String("passkey", cred.Passkey))
	return nil
}

func ensureDemoSubscriber(ctx context.Context, st store.Store, logger *zap.Logger) error {
	if u, err := st.GetUserByPhone(ctx, demoSubscriberMSISDN); err == nil && u != nil {
		logger.Info("demo subscriber already exists", zap.String("account_id", u.AccountId))
		return nil
	}

	account, err := st.CreateAccount(ctx, models.AccountUser, 10_000_00)
	if err != nil {
		return fmt.Errorf("create subscriber account: %w", err)
	}

	user := &models.UserProfile{
		AccountId:   account.Id,
		DisplayName: "John Doe",
		Phone:       demoSubscriberMSISDN,
		PIN:         demoSubscriberPIN,
		SimIdentity: uuid.NewString(),
	}
	if err := st.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create subscriber profile: %w", err)
	}

	logger.Info("created demo subscriber",
		zap.String("account_id", account.Id),
		zap.String("phone", demoSubscriberMSISDN),
		zap.Int64("opening_balance_minor", 10_000_00))
	return nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Info("opening database", zap.String("path", cfg.Database.Path))
	st, err := sqlite.Open(ctx, sqlite.Config{
		Path:         cfg.Database.Path,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}

	common.PrintHeader("SANDBOX SEED SETUP", common.DefaultWidth)

	if err := ensureFeeSchedule(ctx, st, logger); err != nil {
		logger.Fatal("failed to seed fee schedule", zap.Error(err))
	}

	business, err := ensureDemoBusiness(ctx, st, logger)
	if err != nil {
		logger.Fatal("failed to seed demo business", zap.Error(err))
	}

	if err := ensureDemoProject(ctx, st, business, logger); err != nil {
		logger.Fatal("failed to seed demo project", zap.Error(err))
	}

	if err := ensureDemoSubscriber(ctx, st, logger); err != nil {
		logger.Fatal("failed to seed demo subscriber", zap.Error(err))
	}

	common.PrintFooter("Seed setup complete. Start the host and call sandbox.start with the demo project id.", common.DefaultWidth)
}
