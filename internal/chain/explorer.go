package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/models"
)

// Explorer endpoints and token contracts
const (
	blockcypherBTCURL = "https://api.blockcypher.com/v1/btc/main"
	blockcypherLTCURL = "https://api.blockcypher.com/v1/ltc/main"
	etherscanURL      = "https://api.etherscan.io/api"
	bscscanURL        = "https://api.bscscan.com/api"
	trongridURL       = "https://api.trongrid.io"

	usdtBSCContract  = "0x55d398326f99059fF775485246999027B3197955"
	usdtTronContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
)

// ExplorerClient implements Reader over the free public explorer APIs.
// Each network has its own request-rate budget; a limiter wait is the
// only place a call blocks besides the HTTP round trip.
type ExplorerClient struct {
	http         *http.Client
	limiters     map[string]*rate.Limiter
	etherscanKey string
	bscscanKey   string
	log          *zap.Logger
}

func NewExplorerClient(etherscanKey, bscscanKey string, log *zap.Logger) *ExplorerClient {
	return &ExplorerClient{
		http: &http.Client{Timeout: 15 * time.Second},
		limiters: map[string]*rate.Limiter{
			models.NetworkBTC:       rate.NewLimiter(rate.Limit(3), 1),
			models.NetworkLTC:       rate.NewLimiter(rate.Limit(3), 1),
			models.NetworkETH:       rate.NewLimiter(rate.Limit(5), 1),
			models.NetworkUSDTBEP20: rate.NewLimiter(rate.Limit(5), 1),
			models.NetworkUSDTTRC20: rate.NewLimiter(rate.Limit(50), 5),
		},
		etherscanKey: etherscanKey,
		bscscanKey:   bscscanKey,
		log:          log,
	}
}

func (c *ExplorerClient) get(ctx context.Context, network, rawURL string, out any) error {
	if lim, ok := c.limiters[network]; ok {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("explorer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("explorer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *ExplorerClient) GetBalance(ctx context.Context, network, address string) (Amount, error) {
	decimals := models.NetworkDecimals(network)

	switch network {
	case models.NetworkBTC, models.NetworkLTC:
		var out struct {
			Balance json.Number `json:"balance"`
		}
		base := blockcypherBTCURL
		if network == models.NetworkLTC {
			base = blockcypherLTCURL
		}
		if err := c.get(ctx, network, fmt.Sprintf("%s/addrs/%s/balance", base, address), &out); err != nil {
			return Amount{}, err
		}
		return ParseUnits(out.Balance.String(), decimals)

	case models.NetworkETH:
		return c.scanBalance(ctx, network, etherscanURL, c.etherscanKey, url.Values{
			"module":  {"account"},
			"action":  {"balance"},
			"address": {address},
			"tag":     {"latest"},
		})

	case models.NetworkUSDTBEP20:
		return c.scanBalance(ctx, network, bscscanURL, c.bscscanKey, url.Values{
			"module":          {"account"},
			"action":          {"tokenbalance"},
			"contractaddress": {usdtBSCContract},
			"address":         {address},
			"tag":             {"latest"},
		})

	case models.NetworkUSDTTRC20:
		var out struct {
			Data []struct {
				TRC20 []map[string]string `json:"trc20"`
			} `json:"data"`
		}
		if err := c.get(ctx, network, fmt.Sprintf("%s/v1/accounts/%s", trongridURL, address), &out); err != nil {
			return Amount{}, err
		}
		if len(out.Data) == 0 {
			return ZeroAmount(network), nil
		}
		for _, tokens := range out.Data[0].TRC20 {
			if balance, ok := tokens[usdtTronContract]; ok {
				return ParseUnits(balance, decimals)
			}
		}
		return ZeroAmount(network), nil

	default:
		return Amount{}, fmt.Errorf("unsupported network: %s", network)
	}
}

// scanBalance handles the shared Etherscan-style balance envelope.
func (c *ExplorerClient) scanBalance(ctx context.Context, network, base, apiKey string, params url.Values) (Amount, error) {
	params.Set("apikey", apiKey)
	var out struct {
		Status string `json:"status"`
		Result string `json:"result"`
	}
	if err := c.get(ctx, network, base+"?"+params.Encode(), &out); err != nil {
		return Amount{}, err
	}
	if out.Status != "1" {
		return Amount{}, fmt.Errorf("explorer error: %s", out.Result)
	}
	return ParseUnits(out.Result, models.NetworkDecimals(network))
}

func (c *ExplorerClient) GetRecentTransactions(ctx context.Context, network, address string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 10
	}
	decimals := models.NetworkDecimals(network)

	switch network {
	case models.NetworkBTC, models.NetworkLTC:
		var out struct {
			TxRefs []struct {
				TxHash        string      `json:"tx_hash"`
				Value         json.Number `json:"value"`
				Confirmations int         `json:"confirmations"`
				TxOutputN     int         `json:"tx_output_n"`
			} `json:"txrefs"`
		}
		base := blockcypherBTCURL
		if network == models.NetworkLTC {
			base = blockcypherLTCURL
		}
		if err := c.get(ctx, network, fmt.Sprintf("%s/addrs/%s?limit=%d", base, address, limit), &out); err != nil {
			return nil, err
		}
		var txs []Transaction
		for _, ref := range out.TxRefs {
			if len(txs) >= limit {
				break
			}
			amount, err := ParseUnits(ref.Value.String(), decimals)
			if err != nil {
				continue
			}
			txs = append(txs, Transaction{
				Hash:          ref.TxHash,
				Amount:        amount,
				Confirmations: ref.Confirmations,
				// tx_output_n >= 0 marks the address as an output, i.e. a deposit
				Incoming: ref.TxOutputN >= 0,
			})
		}
		return txs, nil

	case models.NetworkETH, models.NetworkUSDTBEP20:
		params := url.Values{
			"module":  {"account"},
			"action":  {"txlist"},
			"address": {address},
			"sort":    {"desc"},
			"page":    {"1"},
			"offset":  {fmt.Sprintf("%d", limit)},
		}
		base, apiKey := etherscanURL, c.etherscanKey
		if network == models.NetworkUSDTBEP20 {
			base, apiKey = bscscanURL, c.bscscanKey
			params.Set("action", "tokentx")
			params.Set("contractaddress", usdtBSCContract)
		}
		params.Set("apikey", apiKey)

		var out struct {
			Result []struct {
				Hash          string      `json:"hash"`
				Value         string      `json:"value"`
				To            string      `json:"to"`
				Confirmations json.Number `json:"confirmations"`
			} `json:"result"`
		}
		if err := c.get(ctx, network, base+"?"+params.Encode(), &out); err != nil {
			return nil, err
		}
		var txs []Transaction
		for _, tx := range out.Result {
			amount, err := ParseUnits(tx.Value, decimals)
			if err != nil {
				continue
			}
			conf, _ := tx.Confirmations.Int64()
			txs = append(txs, Transaction{
				Hash:          tx.Hash,
				Amount:        amount,
				Confirmations: int(conf),
				Incoming:      strings.EqualFold(tx.To, address),
			})
		}
		return txs, nil

	case models.NetworkUSDTTRC20:
		var out struct {
			Data []struct {
				TransactionID string `json:"transaction_id"`
				Value         string `json:"value"`
				To            string `json:"to"`
			} `json:"data"`
		}
		u := fmt.Sprintf("%s/v1/accounts/%s/transactions/trc20?limit=%d&contract_address=%s",
			trongridURL, address, limit, usdtTronContract)
		if err := c.get(ctx, network, u, &out); err != nil {
			return nil, err
		}
		var txs []Transaction
		for _, tx := range out.Data {
			amount, err := ParseUnits(tx.Value, decimals)
			if err != nil {
				continue
			}
			txs = append(txs, Transaction{
				Hash:     tx.TransactionID,
				Amount:   amount,
				Incoming: tx.To == address,
			})
		}
		return txs, nil

	default:
		return nil, fmt.Errorf("unsupported network: %s", network)
	}
}

func (c *ExplorerClient) GetTransaction(ctx context.Context, network, txHash string) (*Transaction, error) {
	decimals := models.NetworkDecimals(network)

	switch network {
	case models.NetworkBTC, models.NetworkLTC:
		var out struct {
			Total         json.Number `json:"total"`
			Confirmations int         `json:"confirmations"`
		}
		base := blockcypherBTCURL
		if network == models.NetworkLTC {
			base = blockcypherLTCURL
		}
		if err := c.get(ctx, network, fmt.Sprintf("%s/txs/%s", base, txHash), &out); err != nil {
			return nil, err
		}
		amount, err := ParseUnits(out.Total.String(), decimals)
		if err != nil {
			return nil, err
		}
		return &Transaction{Hash: txHash, Amount: amount, Confirmations: out.Confirmations}, nil

	case models.NetworkETH, models.NetworkUSDTBEP20:
		base, apiKey := etherscanURL, c.etherscanKey
		if network == models.NetworkUSDTBEP20 {
			base, apiKey = bscscanURL, c.bscscanKey
		}
		params := url.Values{
			"module": {"proxy"},
			"action": {"eth_getTransactionByHash"},
			"txhash": {txHash},
			"apikey": {apiKey},
		}
		var out struct {
			Result struct {
				Value       string  `json:"value"`
				BlockNumber *string `json:"blockNumber"`
			} `json:"result"`
		}
		if err := c.get(ctx, network, base+"?"+params.Encode(), &out); err != nil {
			return nil, err
		}
		amount := ZeroAmount(network)
		if strings.HasPrefix(out.Result.Value, "0x") {
			parsed, err := ParseHexUnits(out.Result.Value, decimals)
			if err == nil {
				amount = parsed
			}
		}
		confirmations := 0
		if out.Result.BlockNumber != nil {
			confirmations = 1
		}
		return &Transaction{Hash: txHash, Amount: amount, Confirmations: confirmations}, nil

	case models.NetworkUSDTTRC20:
		// TronGrid has no single-tx endpoint on the free tier that
		// returns token transfer amounts; report hash-only.
		return &Transaction{Hash: txHash, Amount: ZeroAmount(network)}, nil

	default:
		return nil, fmt.Errorf("unsupported network: %s", network)
	}
}
