package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/todochain/internal/core/domain"
)

const todoListABI = `[
  {"type":"function","name":"getTodoIds","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"ids","type":"uint256[]"}]},
  {"type":"function","name":"getTodo","stateMutability":"view",
   "inputs":[{"name":"id","type":"uint256"}],
   "outputs":[
     {"name":"title","type":"string"},
     {"name":"description","type":"string"},
     {"name":"completed","type":"bool"},
     {"name":"priority","type":"uint8"},
     {"name":"owner","type":"address"},
     {"name":"createdAt","type":"uint256"},
     {"name":"updatedAt","type":"uint256"},
     {"name":"exists","type":"bool"}]},
  {"type":"function","name":"createTodo","stateMutability":"nonpayable",
   "inputs":[
     {"name":"title","type":"string"},
     {"name":"description","type":"string"},
     {"name":"priority","type":"uint8"}],
   "outputs":[{"name":"id","type":"uint256"}]},
  {"type":"function","name":"updateTodo","stateMutability":"nonpayable",
   "inputs":[
     {"name":"id","type":"uint256"},
     {"name":"title","type":"string"},
     {"name":"description","type":"string"},
     {"name":"completed","type":"bool"},
     {"name":"priority","type":"uint8"}],
   "outputs":[]},
  {"type":"function","name":"deleteTodo","stateMutability":"nonpayable",
   "inputs":[{"name":"id","type":"uint256"}],
   "outputs":[]}
]`

const erc20ABI = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"decimals","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint8"}]}
]`

var (
	TodoListABI = mustParse(todoListABI)
	ERC20ABI    = mustParse(erc20ABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("evm: invalid abi: %v", err))
	}
	return parsed
}

// todoRecord mirrors the outputs of getTodo.
type todoRecord struct {
	Title       string
	Description string
	Completed   bool
	Priority    uint8
	Owner       common.Address
	CreatedAt   *big.Int
	UpdatedAt   *big.Int
	Exists      bool
}

func (r todoRecord) toDomain(id uint64) domain.Todo {
	return domain.Todo{
		ID:          id,
		Title:       r.Title,
		Description: r.Description,
		Completed:   r.Completed,
		Priority:    domain.Priority(r.Priority),
		Owner:       r.Owner.Hex(),
		CreatedAt:   unixTime(r.CreatedAt),
		UpdatedAt:   unixTime(r.UpdatedAt),
	}
}
