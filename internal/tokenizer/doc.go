// Package tokenizer binds BPE vocabularies from gpt_bpe to the encoder
// package.
//
// "gpt2" and "pile" load the vocabularies compiled into gpt_bpe; any other
// id is resolved by gpt_bpe itself and may hit the network. "whitespace"
// (or an empty name) selects plain whitespace splitting instead.
package tokenizer
