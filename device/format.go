// Coin amount formatting for confirmation prompts
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package device

import (
	"fmt"

	"github.com/usbarmory/walletfw/hdwallet"
)

// unitSuffix is the display ticker per coin (spec §4.8's human-readable
// confirmation prompts), independent of hdwallet.Coin.Name which is the
// wire CoinName string.
var unitSuffix = map[string]string{
	"Bitcoin":  "BTC",
	"Testnet":  "tBTC",
	"Litecoin": "LTC",
}

// formatAmount renders amount (smallest unit, e.g. satoshi) as a decimal
// coin-denominated string, satisfying the bitcoin.FormatAmount type so
// signing/bitcoin.Session can describe outputs to the user without
// importing this package.
func formatAmount(coin hdwallet.Coin, amount uint64) string {
	whole := amount / 100_000_000
	frac := amount % 100_000_000

	unit := unitSuffix[coin.Name]
	if unit == "" {
		unit = coin.Name
	}

	return fmt.Sprintf("%d.%08d %s", whole, frac, unit)
}
