package bybit

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"marketcache/internal/types"
)

// GetWalletBalance fetches the unified trading account balance. Requires credentials.
func (c *Client) GetWalletBalance(ctx context.Context) (*types.WalletBalance, error) {
	params := url.Values{}
	params.Set("accountType", "UNIFIED")

	var result struct {
		List []struct {
			AccountType           string `json:"accountType"`
			TotalEquity           string `json:"totalEquity"`
			TotalWalletBalance    string `json:"totalWalletBalance"`
			TotalAvailableBalance string `json:"totalAvailableBalance"`
			Coin                  []struct {
				Coin          string `json:"coin"`
				Equity        string `json:"equity"`
				WalletBalance string `json:"walletBalance"`
				USDValue      string `json:"usdValue"`
			} `json:"coin"`
		} `json:"list"`
	}
	if _, err := c.call(ctx, "wallet_balance", "/v5/account/wallet-balance", params, true, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, nil
	}

	raw := result.List[0]
	balance := &types.WalletBalance{
		AccountType:           raw.AccountType,
		TotalEquity:           number(raw.TotalEquity),
		TotalWalletBalance:    number(raw.TotalWalletBalance),
		TotalAvailableBalance: number(raw.TotalAvailableBalance),
		Coins:                 make([]types.CoinBalance, 0, len(raw.Coin)),
	}
	for _, coin := range raw.Coin {
		balance.Coins = append(balance.Coins, types.CoinBalance{
			Coin:          coin.Coin,
			Equity:        number(coin.Equity),
			WalletBalance: number(coin.WalletBalance),
			USDValue:      number(coin.USDValue),
		})
	}
	return balance, nil
}

// GetCoinInfo fetches deposit and withdrawal chain details. An empty coin
// returns every asset. Requires credentials.
func (c *Client) GetCoinInfo(ctx context.Context, coin string) ([]types.CoinInfo, error) {
	params := url.Values{}
	if coin = strings.ToUpper(strings.TrimSpace(coin)); coin != "" {
		params.Set("coin", coin)
	}

	var result struct {
		Rows []struct {
			Name   string `json:"name"`
			Coin   string `json:"coin"`
			Chains []struct {
				Chain         string `json:"chain"`
				ChainType     string `json:"chainType"`
				Confirmation  string `json:"confirmation"`
				WithdrawFee   string `json:"withdrawFee"`
				DepositMin    string `json:"depositMin"`
				WithdrawMin   string `json:"withdrawMin"`
				ChainDeposit  string `json:"chainDeposit"`
				ChainWithdraw string `json:"chainWithdraw"`
			} `json:"chains"`
		} `json:"rows"`
	}
	if _, err := c.call(ctx, "coin_info", "/v5/asset/coin/query-info", params, true, &result); err != nil {
		return nil, err
	}

	infos := make([]types.CoinInfo, 0, len(result.Rows))
	for _, row := range result.Rows {
		info := types.CoinInfo{
			Coin:   row.Coin,
			Name:   row.Name,
			Chains: make([]types.ChainInfo, 0, len(row.Chains)),
		}
		for _, ch := range row.Chains {
			confirmations, _ := strconv.Atoi(ch.Confirmation)
			info.Chains = append(info.Chains, types.ChainInfo{
				Chain:         ch.Chain,
				ChainType:     ch.ChainType,
				Confirmations: confirmations,
				WithdrawFee:   number(ch.WithdrawFee),
				DepositMin:    number(ch.DepositMin),
				WithdrawMin:   number(ch.WithdrawMin),
				Depositable:   ch.ChainDeposit == "1",
				Withdrawable:  ch.ChainWithdraw == "1",
			})
		}
		infos = append(infos, info)
	}
	return infos, nil
}
